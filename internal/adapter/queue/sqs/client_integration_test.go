//go:build integration

package sqs

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/localstack"

	"github.com/NethermindEth/zksync-contract-worker/internal/domain"
)

// newLocalstackSQSClient starts a localstack container pointed at the
// SQS-shaped backend this worker actually uses, and returns a Client wired
// to a freshly created queue.
func newLocalstackSQSClient(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()

	container, err := localstack.Run(ctx, "localstack/localstack:3.0.2")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	mappedPort, err := container.MappedPort(ctx, "4566/tcp")
	require.NoError(t, err)
	host, err := container.Host(ctx)
	require.NoError(t, err)
	endpoint := fmt.Sprintf("http://%s:%s", host, mappedPort.Port())

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("us-east-1"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
	)
	require.NoError(t, err)

	sdk := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) { o.BaseEndpoint = aws.String(endpoint) })

	createOut, err := sdk.CreateQueue(ctx, &sqs.CreateQueueInput{QueueName: aws.String("compile-verify-jobs")})
	require.NoError(t, err)

	return New(sdk, *createOut.QueueUrl, nil)
}

func TestSQSClient_SendReceiveDelete_RoundTrips(t *testing.T) {
	client := newLocalstackSQSClient(t)
	ctx := context.Background()

	msg := domain.QueueMessage{
		Type:    domain.MessageCompile,
		ID:      "11111111-1111-1111-1111-111111111111",
		Compile: &domain.CompilationConfig{Version: "v1.5.0"},
	}
	body, err := msg.MarshalJSON()
	require.NoError(t, err)

	input := sqsSendMessageInput(client.queueURL, string(body))
	_, err = client.sdk.SendMessage(ctx, &input)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		envelopes, err := client.Receive(ctx, 1)
		if err != nil || len(envelopes) == 0 {
			return false
		}
		return envelopes[0].Message.Type == domain.MessageCompile
	}, 10*time.Second, 200*time.Millisecond)
}

func sqsSendMessageInput(queueURL, body string) sqs.SendMessageInput {
	return sqs.SendMessageInput{QueueUrl: &queueURL, MessageBody: &body}
}
