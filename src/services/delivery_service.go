package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ses"

	"reportserver/src/config"
	"reportserver/src/schemas"
	"reportserver/src/utils"
)

// DeliveryServiceI sends a rendered artifact to recipients and reports which
// ones actually got it. Delivery is best-effort: failures are logged, never
// returned, and never abort the run that produced the artifact.
type DeliveryServiceI interface {
	Deliver(ctx context.Context, recipients []string, artifact *schemas.ReportArtifact, downloadURL string) []string
}

type sesDeliveryService struct {
	svc    *ses.SES
	sender string
}

func NewDeliveryService(cfg *config.Config) (DeliveryServiceI, error) {
	if !cfg.Delivery.Enabled {
		return &noopDeliveryService{}, nil
	}

	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(cfg.Delivery.Region),
	})
	if err != nil {
		return nil, err
	}

	return &sesDeliveryService{
		svc:    ses.New(sess),
		sender: cfg.Delivery.Sender,
	}, nil
}

func (s *sesDeliveryService) Deliver(ctx context.Context, recipients []string, artifact *schemas.ReportArtifact, downloadURL string) []string {
	logger := utils.LoggerFromContext(ctx)

	var delivered []string
	for _, recipient := range recipients {
		raw := buildRawMessage(s.sender, recipient, artifact, downloadURL)
		_, err := s.svc.SendRawEmailWithContext(ctx, &ses.SendRawEmailInput{
			Source:       aws.String(s.sender),
			Destinations: []*string{aws.String(recipient)},
			RawMessage:   &ses.RawMessage{Data: raw},
		})
		if err != nil {
			logger.WithError(err).WithField("recipient", recipient).Warn("report delivery failed")
			continue
		}
		delivered = append(delivered, recipient)
	}
	return delivered
}

// buildRawMessage assembles a multipart MIME mail with the artifact attached
// and the single-use download link in the body.
func buildRawMessage(sender, recipient string, artifact *schemas.ReportArtifact, downloadURL string) []byte {
	const boundary = "report-part-boundary"

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", sender)
	fmt.Fprintf(&buf, "To: %s\r\n", recipient)
	fmt.Fprintf(&buf, "Subject: Scheduled report: %s\r\n", artifact.Filename)
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", boundary)

	fmt.Fprintf(&buf, "--%s\r\n", boundary)
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	fmt.Fprintf(&buf, "Your scheduled report %s is attached.\r\n", artifact.Filename)
	if downloadURL != "" {
		fmt.Fprintf(&buf, "It can also be downloaded once at:\r\n%s\r\n", downloadURL)
	}
	buf.WriteString("\r\n")

	fmt.Fprintf(&buf, "--%s\r\n", boundary)
	fmt.Fprintf(&buf, "Content-Type: %s\r\n", artifact.ContentType)
	buf.WriteString("Content-Transfer-Encoding: base64\r\n")
	fmt.Fprintf(&buf, "Content-Disposition: attachment; filename=%q\r\n\r\n", artifact.Filename)
	buf.WriteString(base64.StdEncoding.EncodeToString(artifact.Bytes))
	buf.WriteString("\r\n")

	fmt.Fprintf(&buf, "--%s--\r\n", boundary)
	return buf.Bytes()
}

// noopDeliveryService is used when mail delivery is disabled; reports stay
// available for manual pickup through the download endpoint.
type noopDeliveryService struct{}

func (*noopDeliveryService) Deliver(context.Context, []string, *schemas.ReportArtifact, string) []string {
	return nil
}
