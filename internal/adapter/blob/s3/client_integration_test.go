//go:build integration

package s3

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/localstack"
)

const integrationBucket = "zksync-worker-artifacts"

// newLocalstackBlobClient starts a localstack container and an empty
// bucket, following the same start/cleanup container-fixture shape used
// elsewhere in this codebase.
func newLocalstackBlobClient(t *testing.T) *Client {
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

	sdk := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	_, err = sdk.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(integrationBucket)})
	require.NoError(t, err)

	return New(sdk, integrationBucket, nil)
}

func TestBlobClient_PutGetListDeleteRoundTrip(t *testing.T) {
	client := newLocalstackBlobClient(t)
	ctx := context.Background()

	content := []byte("pragma solidity ^0.8.0;")
	require.NoError(t, client.PutObject(ctx, "job-1/Contract.sol", content))
	require.NoError(t, client.PutObject(ctx, "job-1/lib/Helper.sol", content))

	keys, err := client.ListPrefix(ctx, "job-1/")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"job-1/Contract.sol", "job-1/lib/Helper.sol"}, keys)

	got, err := client.GetObject(ctx, "job-1/Contract.sol")
	require.NoError(t, err)
	require.Equal(t, content, got)

	url, err := client.PresignGet(ctx, "job-1/Contract.sol", 60)
	require.NoError(t, err)
	require.NotEmpty(t, url)

	require.NoError(t, client.DeletePrefix(ctx, "job-1/"))
	keys, err = client.ListPrefix(ctx, "job-1/")
	require.NoError(t, err)
	require.Empty(t, keys)
}
