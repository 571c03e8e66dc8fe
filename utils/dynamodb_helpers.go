package utils

import (
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// KeyAttributes renders a string-valued primary key as a DynamoDB
// attribute map. All our tables key on plain string attributes.
func KeyAttributes(key map[string]string) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(key))
	for attr, value := range key {
		out[attr] = &types.AttributeValueMemberS{Value: value}
	}
	return out
}

// IsConditionalCheckFailure reports whether err is a failed condition,
// either on a single-item write or inside a canceled transaction.
func IsConditionalCheckFailure(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		for _, reason := range tce.CancellationReasons {
			if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
				return true
			}
		}
	}
	return false
}
