// Package cloudwatch ships batches to Amazon CloudWatch Logs.
package cloudwatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/sirupsen/logrus"

	"github.com/MuchTitan/awatchlog/internal"
	"github.com/MuchTitan/awatchlog/internal/sink"
	"github.com/MuchTitan/awatchlog/internal/util"
)

const defaultRegion = "us-east-1"

// API is the subset of the CloudWatch Logs client the sink uses.
type API interface {
	CreateLogGroup(ctx context.Context, params *cloudwatchlogs.CreateLogGroupInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogGroupOutput, error)
	CreateLogStream(ctx context.Context, params *cloudwatchlogs.CreateLogStreamInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error)
	PutLogEvents(ctx context.Context, params *cloudwatchlogs.PutLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error)
}

type CloudWatch struct {
	name     string
	region   string
	endpoint string
	client   API
}

// New wraps an existing client.
func New(client API) *CloudWatch {
	return &CloudWatch{name: "cloudwatch", region: defaultRegion, client: client}
}

func (c *CloudWatch) Name() string {
	return c.name
}

func (c *CloudWatch) Init(config map[string]any) error {
	c.name = util.MustString(config["Name"])
	if c.name == "" {
		c.name = "cloudwatch"
	}

	c.region = util.MustString(config["Region"])
	if c.region == "" {
		c.region = defaultRegion
	}

	c.endpoint = util.MustString(config["Endpoint"])

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(c.region),
	}

	accessKey := util.MustString(config["AccessKeyID"])
	secretKey := util.MustString(config["SecretAccessKey"])
	if (accessKey == "") != (secretKey == "") {
		return errors.New("cloudwatch sink needs both AccessKeyID and SecretAccessKey")
	}
	if accessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, util.MustString(config["SessionToken"])),
		))
	}

	if profile := util.MustString(config["Profile"]); profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return fmt.Errorf("failed to load aws config: %w", err)
	}

	c.client = cloudwatchlogs.NewFromConfig(cfg, func(o *cloudwatchlogs.Options) {
		if c.endpoint != "" {
			o.BaseEndpoint = aws.String(c.endpoint)
		}
	})
	return nil
}

func (c *CloudWatch) EnsureLogGroup(ctx context.Context, group string) error {
	_, err := c.client.CreateLogGroup(ctx, &cloudwatchlogs.CreateLogGroupInput{
		LogGroupName: aws.String(group),
	})
	return createError(err)
}

func (c *CloudWatch) EnsureLogStream(ctx context.Context, group, stream string) error {
	_, err := c.client.CreateLogStream(ctx, &cloudwatchlogs.CreateLogStreamInput{
		LogGroupName:  aws.String(group),
		LogStreamName: aws.String(stream),
	})
	return createError(err)
}

func createError(err error) error {
	if err == nil {
		return nil
	}
	var exists *types.ResourceAlreadyExistsException
	if errors.As(err, &exists) {
		return fmt.Errorf("%w: %s", sink.ErrAlreadyExists, exists.ErrorMessage())
	}
	return err
}

func (c *CloudWatch) Send(ctx context.Context, group, stream string, events []internal.LogEvent, token string) (sink.Outcome, error) {
	logEvents := make([]types.InputLogEvent, 0, len(events))
	for _, event := range events {
		logEvents = append(logEvents, types.InputLogEvent{
			Message:   aws.String(event.Message),
			Timestamp: aws.Int64(event.TimestampMs),
		})
	}

	input := &cloudwatchlogs.PutLogEventsInput{
		LogGroupName:  aws.String(group),
		LogStreamName: aws.String(stream),
		LogEvents:     logEvents,
	}
	if token != "" {
		input.SequenceToken = aws.String(token)
	}

	out, err := c.client.PutLogEvents(ctx, input)
	if err != nil {
		return sendError(err)
	}

	if info := out.RejectedLogEventsInfo; info != nil {
		logrus.WithFields(logrus.Fields{
			"group":        group,
			"stream":       stream,
			"tooNewStart":  aws.ToInt32(info.TooNewLogEventStartIndex),
			"tooOldEnd":    aws.ToInt32(info.TooOldLogEventEndIndex),
			"expiredEnd":   aws.ToInt32(info.ExpiredLogEventEndIndex),
			"batchEntries": len(events),
		}).Warn("CloudWatch rejected part of a batch")
	}

	return sink.Outcome{Status: sink.Delivered, Token: aws.ToString(out.NextSequenceToken)}, nil
}

func sendError(err error) (sink.Outcome, error) {
	var invalid *types.InvalidSequenceTokenException
	if errors.As(err, &invalid) {
		if invalid.ExpectedSequenceToken != nil {
			return sink.Outcome{Status: sink.Conflict, Token: *invalid.ExpectedSequenceToken}, nil
		}
		if token, ok := sink.ParseConflict(invalid.ErrorMessage()); ok {
			return sink.Outcome{Status: sink.Conflict, Token: token}, nil
		}
		return sink.Outcome{}, fmt.Errorf("put log events: unrecognised sequence token error: %w", err)
	}

	// the batch is already stored, continue with the token it expects next
	var accepted *types.DataAlreadyAcceptedException
	if errors.As(err, &accepted) {
		if accepted.ExpectedSequenceToken != nil {
			return sink.Outcome{Status: sink.Delivered, Token: *accepted.ExpectedSequenceToken}, nil
		}
		if token, ok := sink.ParseConflict(accepted.ErrorMessage()); ok {
			return sink.Outcome{Status: sink.Delivered, Token: token}, nil
		}
	}

	return sink.Outcome{}, fmt.Errorf("put log events: %w", err)
}

func (c *CloudWatch) Exit() error {
	return nil
}
