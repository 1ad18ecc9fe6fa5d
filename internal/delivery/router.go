package delivery

import (
	"fmt"

	"github.com/notifygov/delivery-engine/internal/domain"
	"github.com/notifygov/delivery-engine/internal/provider"
)

// Router picks the provider client for a notification.
//
// Email goes to SES and letters to the print vendor. SMS splits on the
// shortcode pool: templates registered for the pool go to Pinpoint, the rest
// to SNS. The pool membership is configuration data, not code.
type Router struct {
	email              provider.Client
	sms                provider.Client
	shortcodeSMS       provider.Client
	letter             provider.Client
	shortcodeTemplates map[string]struct{}
}

func NewRouter(email, sms, shortcodeSMS, letter provider.Client, shortcodeTemplateIDs []string) (*Router, error) {
	if email == nil {
		return nil, fmt.Errorf("email provider is required")
	}
	if sms == nil {
		return nil, fmt.Errorf("sms provider is required")
	}
	if letter == nil {
		return nil, fmt.Errorf("letter provider is required")
	}
	if shortcodeSMS == nil {
		shortcodeSMS = sms
	}

	pool := make(map[string]struct{}, len(shortcodeTemplateIDs))
	for _, id := range shortcodeTemplateIDs {
		pool[id] = struct{}{}
	}

	return &Router{
		email:              email,
		sms:                sms,
		shortcodeSMS:       shortcodeSMS,
		letter:             letter,
		shortcodeTemplates: pool,
	}, nil
}

func (r *Router) Route(n domain.Notification) (provider.Client, error) {
	switch n.Type {
	case domain.TypeEmail:
		return r.email, nil
	case domain.TypeLetter:
		return r.letter, nil
	case domain.TypeSMS:
		if _, ok := r.shortcodeTemplates[n.TemplateID]; ok {
			return r.shortcodeSMS, nil
		}
		return r.sms, nil
	default:
		return nil, fmt.Errorf("%w: no provider for notification type %q", domain.ErrValidation, n.Type)
	}
}
