package s3infra

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/federicoroldos/sofull-site/internal/config"
	"github.com/federicoroldos/sofull-site/internal/domain"
)

// NewClient creates an S3 client. When cfg.AWSEndpointURL is set (LocalStack),
// it overrides the endpoint and enables path-style addressing.
func NewClient(cfg *config.Config) *s3.Client {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWSRegion),
	}

	if cfg.AWSAccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		panic("failed to load AWS config for S3: " + err.Error())
	}

	clientOpts := []func(*s3.Options){}
	if cfg.AWSEndpointURL != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
			o.UsePathStyle = true
		})
	}

	return s3.NewFromConfig(awsCfg, clientOpts...)
}

// Template is one email template: subject plus both body renderings. The
// {{name}} placeholder is substituted at send time.
type Template struct {
	Subject string
	Text    string
	HTML    string
}

// TemplateStore loads email templates from an S3 bucket, falling back to the
// embedded defaults when the bucket is unset or an object is missing. Layout:
// templates/<event>/subject.txt, body.txt, body.html.
type TemplateStore struct {
	client *s3.Client
	bucket string
}

func NewTemplateStore(client *s3.Client, bucket string) *TemplateStore {
	return &TemplateStore{client: client, bucket: bucket}
}

// Load returns the template for the given event type. S3 failures degrade to
// the embedded default with a warning; templates are presentation, not
// correctness.
func (s *TemplateStore) Load(ctx context.Context, t domain.EventType) Template {
	def := defaultTemplate(t)
	if s == nil || s.bucket == "" {
		return def
	}
	out := def
	if v, ok := s.fetch(ctx, fmt.Sprintf("templates/%s/subject.txt", t)); ok {
		out.Subject = v
	}
	if v, ok := s.fetch(ctx, fmt.Sprintf("templates/%s/body.txt", t)); ok {
		out.Text = v
	}
	if v, ok := s.fetch(ctx, fmt.Sprintf("templates/%s/body.html", t)); ok {
		out.HTML = v
	}
	return out
}

func (s *TemplateStore) fetch(ctx context.Context, key string) (string, bool) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		slog.Warn("template fetch failed, using embedded default", "key", key, "err", err)
		return "", false
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		slog.Warn("template read failed, using embedded default", "key", key, "err", err)
		return "", false
	}
	return string(data), true
}

func defaultTemplate(t domain.EventType) Template {
	switch t {
	case domain.EventWelcome:
		return Template{
			Subject: "Welcome to Sofull",
			Text:    "Hi {{name}},\n\nWelcome to Sofull! Your account is ready and your list is waiting.\n",
			HTML:    "<p>Hi {{name}},</p><p>Welcome to <b>Sofull</b>! Your account is ready and your list is waiting.</p>",
		}
	default:
		return Template{
			Subject: "New sign-in to your Sofull account",
			Text:    "Hi {{name}},\n\nWe noticed a new sign-in to your account. If this was you, there is nothing to do.\n",
			HTML:    "<p>Hi {{name}},</p><p>We noticed a new sign-in to your account. If this was you, there is nothing to do.</p>",
		}
	}
}
