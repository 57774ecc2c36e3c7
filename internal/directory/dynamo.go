package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/imrishuroy/insurance-relay/internal/aws"
	"github.com/imrishuroy/insurance-relay/internal/patient"
)

// Record is the item stored in the insurance DynamoDB table.
type Record struct {
	PatientID string `dynamodbav:"patient_id"` // PK
	patient.PolicyInfo
	UpdatedAt time.Time `dynamodbav:"updated_at"`
}

// DynamoDirectory encapsulates lookups against the insurance table.
type DynamoDirectory struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewDynamoDirectory creates a directory bound to tableName.
func NewDynamoDirectory(client aws.DynamoDBAPI, tableName string) *DynamoDirectory {
	return &DynamoDirectory{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// Lookup fetches a policy by patient_id.
func (d *DynamoDirectory) Lookup(ctx context.Context, patientID string) (patient.PolicyInfo, bool, error) {
	out, err := d.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &d.tableName,
		Key: map[string]types.AttributeValue{
			"patient_id": &types.AttributeValueMemberS{Value: patientID},
		},
	})
	if err != nil {
		return patient.PolicyInfo{}, false, fmt.Errorf("get item%s: %w", errorCode(err), err)
	}
	if len(out.Item) == 0 {
		return patient.PolicyInfo{}, false, nil
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return patient.PolicyInfo{}, false, fmt.Errorf("unmarshal record: %w", err)
	}
	return rec.PolicyInfo, true, nil
}

// Put upserts the policy for patientID.
func (d *DynamoDirectory) Put(ctx context.Context, patientID string, info patient.PolicyInfo) error {
	item, err := attributevalue.MarshalMap(Record{
		PatientID:  patientID,
		PolicyInfo: info,
		UpdatedAt:  d.nowFunc().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	_, err = d.client.PutItem(ctx, &dyn.PutItemInput{
		TableName: &d.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put item%s: %w", errorCode(err), err)
	}
	return nil
}

// Import writes every entry, stopping at the first failure.
func (d *DynamoDirectory) Import(ctx context.Context, entries []Entry) (int, error) {
	for i, e := range entries {
		if err := d.Put(ctx, e.PatientID, e.PolicyInfo); err != nil {
			return i, fmt.Errorf("import %s: %w", e.PatientID, err)
		}
	}
	return len(entries), nil
}

func errorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return " (" + apiErr.ErrorCode() + ")"
	}
	return ""
}
