package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-aws/sns"
	"github.com/ThreeDotsLabs/watermill-aws/sqs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	amazonsns "github.com/aws/aws-sdk-go-v2/service/sns"
	amazonsqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	smithyendpoints "github.com/aws/smithy-go/endpoints"

	configpkg "github.com/drblury/fluxnotify/internal/runtime/config"
)

var (
	AWSDefaultConfigLoader  = awsconfig.LoadDefaultConfig
	SNSTopicResolverFactory = sns.NewGenerateArnTopicResolver
	SNSSubscriberFactory    = func(cfg sns.SubscriberConfig, sqsCfg sqs.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		return sns.NewSubscriber(cfg, sqsCfg, logger)
	}
)

const (
	localstackAccountID = "000000000000"
	awsAccountIDLength  = 12
)

// awsSource subscribes an SQS queue per SNS topic. Queues are named
// <topic>-<durable> so that replicas of the same relay share a queue.
func awsSource(ctx context.Context, conf *configpkg.Config, logger watermill.LoggerAdapter) (Consumer, error) {
	cfg, err := createAWSConfig(ctx, conf, logger)
	if err != nil {
		return nil, connectError(configpkg.SourceAWS, "load config", err)
	}
	logger.Info("Created AWS config", watermill.LogFields{
		"region":          cfg.Region,
		"custom_endpoint": conf.AWSEndpoint != "",
	})

	binding := conf.Binding()
	subscriber, err := createAWSSubscriber(conf, binding.Durable, logger, cfg)
	if err != nil {
		return nil, connectError(configpkg.SourceAWS, "subscriber", err)
	}
	return newWatermillConsumer(configpkg.SourceAWS, subscriber, binding.Subjects, logger), nil
}

func createAWSConfig(ctx context.Context, conf *configpkg.Config, logger watermill.LoggerAdapter) (*aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if conf.AWSRegion != "" {
		opts = append(opts, awsconfig.WithRegion(conf.AWSRegion))
	}
	if conf.AWSAccessKeyID != "" && conf.AWSSecretAccessKey != "" {
		logger.Info("Using static AWS credentials from config", nil)
		opts = append(opts, awsconfig.WithCredentialsProvider(staticCredentialsProvider(conf.AWSAccessKeyID, conf.AWSSecretAccessKey)))
	}

	cfg, err := AWSDefaultConfigLoader(ctx, opts...)
	if err != nil {
		return nil, err
	}
	if conf.AWSRegion != "" {
		cfg.Region = conf.AWSRegion
	}
	return &cfg, nil
}

func createAWSSubscriber(conf *configpkg.Config, durable string, logger watermill.LoggerAdapter, cfg *aws.Config) (message.Subscriber, error) {
	accountID, region := resolveAccountAndRegion(conf, logger, cfg.Region)
	topicResolver, err := SNSTopicResolverFactory(accountID, region)
	if err != nil {
		return nil, fmt.Errorf("topic resolver: %w", err)
	}

	snsOpts, sqsOpts, err := endpointOptions(conf)
	if err != nil {
		return nil, err
	}

	return SNSSubscriberFactory(
		sns.SubscriberConfig{
			AWSConfig:            *cfg,
			OptFns:               snsOpts,
			TopicResolver:        topicResolver,
			GenerateSqsQueueName: sqsQueueNameGenerator(durable),
		},
		sqs.SubscriberConfig{
			AWSConfig: *cfg,
			OptFns:    sqsOpts,
		},
		logger,
	)
}

func sqsQueueNameGenerator(durable string) func(context.Context, sns.TopicArn) (string, error) {
	return func(_ context.Context, topicArn sns.TopicArn) (string, error) {
		topic, err := sns.ExtractTopicNameFromTopicArn(topicArn)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%v-%v", topic, durable), nil
	}
}

func endpointOptions(conf *configpkg.Config) ([]func(*amazonsns.Options), []func(*amazonsqs.Options), error) {
	if conf.AWSEndpoint == "" {
		return nil, nil, nil
	}
	parsedURL, err := url.Parse(conf.AWSEndpoint)
	if err != nil {
		return nil, nil, fmt.Errorf("parse AWS endpoint: %w", err)
	}
	snsOpts := []func(*amazonsns.Options){
		amazonsns.WithEndpointResolverV2(sns.OverrideEndpointResolver{
			Endpoint: smithyendpoints.Endpoint{URI: *parsedURL},
		}),
	}
	sqsOpts := []func(*amazonsqs.Options){
		amazonsqs.WithEndpointResolverV2(sqs.OverrideEndpointResolver{
			Endpoint: smithyendpoints.Endpoint{URI: *parsedURL},
		}),
	}
	return snsOpts, sqsOpts, nil
}

func resolveAccountAndRegion(conf *configpkg.Config, logger watermill.LoggerAdapter, fallbackRegion string) (string, string) {
	accountID := strings.Trim(conf.AWSAccountID, "\"' ")
	region := conf.AWSRegion
	if region == "" {
		region = fallbackRegion
	}

	localstack := conf.AWSEndpoint != ""
	if localstack && len(accountID) != awsAccountIDLength {
		logger.Info("Using LocalStack default account ID", watermill.LogFields{"configured": accountID})
		accountID = localstackAccountID
	}
	return accountID, region
}

func staticCredentialsProvider(accessKeyID, secretAccessKey string) aws.CredentialsProvider {
	return aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     accessKeyID,
			SecretAccessKey: secretAccessKey,
		}, nil
	})
}
