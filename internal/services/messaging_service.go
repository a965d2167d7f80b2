package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/CallumWaite/gatehouse/internal/models"
	pkglogger "github.com/CallumWaite/gatehouse/pkg/logger"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/google/uuid"
)

// AWSMessagingService delivers verification codes over email (SES) and SMS
// (SNS). In disabled mode, used outside production, the code is written to
// the operational log instead of being sent.
type AWSMessagingService struct {
	sesClient    *ses.Client
	snsClient    *sns.Client
	fromAddress  string
	smsSenderID  string
	organization string
	disabled     bool
	logger       *slog.Logger
}

func NewAWSMessagingService(region, fromAddress, smsSenderID, organization string, disabled bool, logger *slog.Logger) (*AWSMessagingService, error) {
	svc := &AWSMessagingService{
		fromAddress:  fromAddress,
		smsSenderID:  smsSenderID,
		organization: organization,
		disabled:     disabled,
		logger:       logger,
	}
	if disabled {
		return svc, nil
	}

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	svc.sesClient = ses.NewFromConfig(cfg)
	svc.snsClient = sns.NewFromConfig(cfg)
	return svc, nil
}

// SendCode delivers a verification code to the contact entity.
func (s *AWSMessagingService) SendCode(ctx context.Context, ref models.ContactRef, code string) error {
	if s.disabled {
		s.logger.Info("verification code requested",
			slog.String("channel", string(ref.Channel)),
			slog.String("identifier", s.sanitizedIdentifier(ref)),
			slog.String("code", code))
		return nil
	}

	dispatchID := uuid.New().String()

	var err error
	switch ref.Channel {
	case models.ChannelPhone:
		err = s.sendSMS(ctx, ref, code)
	case models.ChannelEmail:
		err = s.sendEmail(ctx, ref, code)
	default:
		return fmt.Errorf("unknown channel %q", ref.Channel)
	}
	if err != nil {
		return fmt.Errorf("dispatch %s failed: %w", dispatchID, err)
	}

	s.logger.Info("verification code dispatched",
		slog.String("dispatch_id", dispatchID),
		slog.String("channel", string(ref.Channel)),
		slog.String("identifier", s.sanitizedIdentifier(ref)))
	return nil
}

func (s *AWSMessagingService) sendSMS(ctx context.Context, ref models.ContactRef, code string) error {
	input := &sns.PublishInput{
		PhoneNumber: aws.String(fmt.Sprintf("+%d%s", ref.CountryCode, ref.PhoneNumber)),
		Message:     aws.String(fmt.Sprintf("Your %s verification code is %s.", s.organization, code)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"AWS.SNS.SMS.SMSType": {
				DataType:    aws.String("String"),
				StringValue: aws.String("Transactional"),
			},
		},
	}
	if s.smsSenderID != "" {
		input.MessageAttributes["AWS.SNS.SMS.SenderID"] = snstypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(s.smsSenderID),
		}
	}

	if _, err := s.snsClient.Publish(ctx, input); err != nil {
		return fmt.Errorf("failed to publish SMS: %w", err)
	}
	return nil
}

func (s *AWSMessagingService) sendEmail(ctx context.Context, ref models.ContactRef, code string) error {
	htmlBody := fmt.Sprintf(
		`<h1 style="text-align: center;">%s</h1><p style="text-align: center; font-size: 16px;">Your verification code is %s.</p>`,
		s.organization, code)
	textBody := fmt.Sprintf("Your %s verification code is %s.", s.organization, code)

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &sestypes.Destination{
			ToAddresses: []string{ref.EmailAddress},
		},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{
				Data:    aws.String("Verification Code"),
				Charset: aws.String("UTF-8"),
			},
			Body: &sestypes.Body{
				Html: &sestypes.Content{Data: aws.String(htmlBody), Charset: aws.String("UTF-8")},
				Text: &sestypes.Content{Data: aws.String(textBody), Charset: aws.String("UTF-8")},
			},
		},
	}

	if _, err := s.sesClient.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func (s *AWSMessagingService) sanitizedIdentifier(ref models.ContactRef) string {
	if ref.Channel == models.ChannelEmail {
		return pkglogger.SanitizedEmail(ref.EmailAddress)
	}
	return pkglogger.SanitizedPhone(ref.Identifier())
}
