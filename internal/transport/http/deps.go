package http

import (
	"github.com/federicoroldos/sofull-site/internal/application/notify"
	s3infra "github.com/federicoroldos/sofull-site/internal/infrastructure/s3"
	"github.com/federicoroldos/sofull-site/internal/infrastructure/sns"
	"github.com/federicoroldos/sofull-site/internal/transport/http/handler"
)

// Deps holds the collaborators the router requires, as minimal interfaces so
// the transport can be exercised without live backends.
type Deps struct {
	States     notify.EmailStateStore
	Mailer     notify.Mailer
	Templates  notify.TemplateLoader
	Outcomes   sns.OutcomePublisher // optional
	Assertions handler.AssertionVerifier
	Captcha    handler.CaptchaVerifier // nil when unconfigured
}

// The S3 template store satisfies the dispatcher's loader contract; a nil
// store degrades to the embedded defaults inside Load.
var _ notify.TemplateLoader = (*s3infra.TemplateStore)(nil)
