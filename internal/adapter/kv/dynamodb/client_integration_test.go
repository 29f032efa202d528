//go:build integration

package dynamodb

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/localstack"

	"github.com/NethermindEth/zksync-contract-worker/internal/domain"
)

const integrationTableName = "compile-verify-jobs"

// newLocalstackKVClient starts a localstack container and a table shaped
// exactly like Client expects (string partition key "ID").
func newLocalstackKVClient(t *testing.T) (*Client, *dynamodb.Client) {
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

	sdk := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) { o.BaseEndpoint = aws.String(endpoint) })

	_, err = sdk.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(integrationTableName),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(primaryKeyName), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(primaryKeyName), KeyType: types.KeyTypeHash},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	require.NoError(t, err)

	return New(sdk, integrationTableName, nil), sdk
}

func seedPendingRecord(t *testing.T, sdk *dynamodb.Client, id domain.JobID) {
	t.Helper()
	_, err := sdk.PutItem(context.Background(), &dynamodb.PutItemInput{
		TableName: aws.String(integrationTableName),
		Item: map[string]types.AttributeValue{
			primaryKeyName:   &types.AttributeValueMemberS{Value: id.String()},
			statusAttribute:  &types.AttributeValueMemberN{Value: itoa(int(domain.StatusPending))},
			createdAttribute: &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
		},
	})
	require.NoError(t, err)
}

func TestKVClient_ClaimCompleteAndFetch(t *testing.T) {
	client, sdk := newLocalstackKVClient(t)
	ctx := context.Background()
	id := domain.NewJobID()
	seedPendingRecord(t, sdk, id)

	err := client.UpdateStatusConditional(ctx, id, domain.StatusPending, domain.StatusInProgress)
	require.NoError(t, err)

	err = client.UpdateStatusConditional(ctx, id, domain.StatusPending, domain.StatusInProgress)
	require.ErrorIs(t, err, domain.ErrConditionalCheckFailed)

	result := domain.NewVerifySuccess("verified ok")
	require.NoError(t, client.Complete(ctx, id, result))

	rec, err := client.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.StatusDone, rec.Status)
	require.NotNil(t, rec.Data)
	require.True(t, rec.Data.IsSuccess())

	require.NoError(t, client.Delete(ctx, id))
	_, err = client.Get(ctx, id)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestKVClient_ScanPriorToFindsSeededRecords(t *testing.T) {
	client, sdk := newLocalstackKVClient(t)
	ctx := context.Background()
	id := domain.NewJobID()
	seedPendingRecord(t, sdk, id)

	items, _, err := client.ScanPriorTo(ctx, time.Now().Add(time.Hour), "")
	require.NoError(t, err)
	found := false
	for _, it := range items {
		if it.ID == id {
			found = true
		}
	}
	require.True(t, found)
}
