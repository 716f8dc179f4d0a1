package service

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/osteele/liquid"

	"github.com/nuntius-io/nuntius/internal/domain"
	"github.com/nuntius-io/nuntius/pkg/crypto"
	"github.com/nuntius-io/nuntius/pkg/mailer"
)

var (
	// legacyVarRegexp matches the historical [VAR] substitution markers.
	legacyVarRegexp = regexp.MustCompile(`\[([-a-zA-Z_]+)\]`)

	// linkRegexp matches href attributes pointing at absolute http(s) URLs.
	linkRegexp = regexp.MustCompile(`(?mi)(<a[^>]* href\s*=[\s"']*)(http[^"'>\s]+)`)

	// bodyCloseRegexp locates the insertion point for the tracking pixel.
	bodyCloseRegexp = regexp.MustCompile(`(?mi)(</body\b)`)
)

// Renderer turns a campaign and a subscriber into a ready-to-send message:
// template substitution, tracking pixel, signed link rewriting. Rendering
// is pure, all state lives in the arguments.
type Renderer struct {
	publicURL string
	engine    *liquid.Engine
}

// NewRenderer creates a renderer. publicURL is the external base URL the
// tracking endpoints are mounted on, without trailing slash.
func NewRenderer(publicURL string) *Renderer {
	return &Renderer{
		publicURL: strings.TrimRight(publicURL, "/"),
		engine:    liquid.NewEngine(),
	}
}

// TranslateLegacyMarkers rewrites [VAR] markers into {{ VAR }} template
// syntax.
func TranslateLegacyMarkers(template string) string {
	return legacyVarRegexp.ReplaceAllString(template, "{{ $1 }}")
}

// Render produces the message for one send record. segment may be nil for
// campaigns targeting all subscribers.
func (r *Renderer) Render(campaign *domain.Campaign, segment *domain.Segment, subscriber *domain.Subscriber, record *domain.SendRecord) (*mailer.Message, error) {
	context := subscriber.TemplateContext()
	context["tracking_id"] = record.TrackingID

	textBody, err := r.renderTemplate(campaign.TextBody, context)
	if err != nil {
		return nil, fmt.Errorf("failed to render text body: %w", err)
	}

	htmlBody, err := r.renderTemplate(campaign.HTMLBody, context)
	if err != nil {
		return nil, fmt.Errorf("failed to render html body: %w", err)
	}
	if htmlBody != "" {
		htmlBody = r.rewriteLinks(htmlBody, campaign, segment, record.TrackingID)
		htmlBody = r.insertTrackingPixel(htmlBody, record.TrackingID)
	}

	return &mailer.Message{
		FromEmail: campaign.FromEmail,
		FromName:  campaign.FromName,
		ReplyTo:   campaign.ReplyToHeader(),
		To:        record.Email,
		Subject:   campaign.Subject,
		TextBody:  textBody,
		HTMLBody:  htmlBody,
	}, nil
}

func (r *Renderer) renderTemplate(template string, context map[string]interface{}) (string, error) {
	if template == "" {
		return "", nil
	}
	return r.engine.ParseAndRenderString(TranslateLegacyMarkers(template), context)
}

// rewriteLinks replaces every absolute link with a signed redirect through
// the click tracking endpoint. Links are numbered in document order so
// click reports can tell them apart.
func (r *Renderer) rewriteLinks(html string, campaign *domain.Campaign, segment *domain.Segment, trackingID string) string {
	utmTerm := ""
	if segment != nil {
		utmTerm = segment.UTMTerm
	}

	linkIndex := 0
	return linkRegexp.ReplaceAllStringFunc(html, func(match string) string {
		groups := linkRegexp.FindStringSubmatch(match)
		target := extendQuery(groups[2], map[string]string{
			"utm_content": fmt.Sprintf("link-%d", linkIndex),
			"utm_term":    utmTerm,
		})
		linkIndex++

		signature := crypto.SignURL(campaign.SignatureKey, target)
		return groups[1] + fmt.Sprintf("%s/link/%s/%s/%s",
			r.publicURL, trackingID, signature, url.QueryEscape(target))
	})
}

// insertTrackingPixel places a 1x1 image before the closing body tag. HTML
// without a body tag is left as is.
func (r *Renderer) insertTrackingPixel(html, trackingID string) string {
	img := fmt.Sprintf(`<img src="%s/open/%s" width="1" height="1" alt="nt">`,
		r.publicURL, trackingID)
	return bodyCloseRegexp.ReplaceAllString(html, img+"$1")
}

// extendQuery adds the default query parameters to a URL, keeping any
// values the author already set.
func extendQuery(rawURL string, defaults map[string]string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	query := u.Query()
	for key, value := range defaults {
		if !query.Has(key) {
			query.Set(key, value)
		}
	}
	u.RawQuery = query.Encode()
	return u.String()
}
