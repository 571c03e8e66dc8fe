package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"showmates_server/models"
	"showmates_server/utils"
)

// DynamoService implements DocumentStore against DynamoDB. All services
// share one instance.
type DynamoService struct {
	Client *dynamodb.Client
}

// InitializeDynamoDBClient initializes the DynamoDB client
func InitializeDynamoDBClient() *dynamodb.Client {
	cfg, err := config.LoadDefaultConfig(context.TODO(), config.WithRegion(os.Getenv("AWS_REGION")))
	if err != nil {
		log.Fatalf("Failed to load AWS config: %v", err)
	}
	return dynamodb.NewFromConfig(cfg)
}

// GetItem retrieves one document and unmarshals it into out.
func (ds *DynamoService) GetItem(ctx context.Context, tableName string, key Key, out interface{}) error {
	output, err := ds.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &tableName,
		Key:       utils.KeyAttributes(key),
	})
	if err != nil {
		return fmt.Errorf("failed to get item from table '%s': %w", tableName, err)
	}
	if output.Item == nil {
		return fmt.Errorf("table '%s': %w", tableName, ErrItemNotFound)
	}
	if err := attributevalue.UnmarshalMap(output.Item, out); err != nil {
		return fmt.Errorf("failed to unmarshal item from table '%s': %w", tableName, err)
	}
	return nil
}

// PutItem writes one document, replacing any existing one unless a
// condition forbids it.
func (ds *DynamoService) PutItem(ctx context.Context, tableName string, item interface{}, conds ...Condition) error {
	marshaledItem, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName: &tableName,
		Item:      marshaledItem,
	}
	if err := applyConditions(conds, &input.ConditionExpression, &input.ExpressionAttributeNames, &input.ExpressionAttributeValues); err != nil {
		return err
	}

	if _, err = ds.Client.PutItem(ctx, input); err != nil {
		if utils.IsConditionalCheckFailure(err) {
			return fmt.Errorf("put in table '%s': %w", tableName, ErrConditionFailed)
		}
		return fmt.Errorf("failed to put item in table '%s': %w", tableName, err)
	}
	return nil
}

// UpdateItem applies the mutations to one document. A missing document
// is upserted from its key plus the mutation results, matching DynamoDB
// update semantics.
func (ds *DynamoService) UpdateItem(ctx context.Context, tableName string, key Key, muts []Mutation, conds ...Condition) error {
	if len(key) == 0 {
		return fmt.Errorf("update failed: key cannot be empty: %w", ErrInvalidInput)
	}

	expr, names, values, err := buildUpdateExpression(muts)
	if err != nil {
		return err
	}

	input := &dynamodb.UpdateItemInput{
		TableName:                &tableName,
		Key:                      utils.KeyAttributes(key),
		UpdateExpression:         &expr,
		ExpressionAttributeNames: names,
	}
	if len(values) > 0 {
		input.ExpressionAttributeValues = values
	}
	if err := applyConditions(conds, &input.ConditionExpression, &input.ExpressionAttributeNames, &input.ExpressionAttributeValues); err != nil {
		return err
	}

	if _, err := ds.Client.UpdateItem(ctx, input); err != nil {
		if utils.IsConditionalCheckFailure(err) {
			return fmt.Errorf("update in table '%s': %w", tableName, ErrConditionFailed)
		}
		log.Printf("❌ Failed to update item in table '%s': %v", tableName, err)
		return fmt.Errorf("failed to update item in table '%s': %w", tableName, err)
	}
	return nil
}

// DeleteItem removes an item from DynamoDB
func (ds *DynamoService) DeleteItem(ctx context.Context, tableName string, key Key) error {
	_, err := ds.Client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: &tableName,
		Key:       utils.KeyAttributes(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete item from table '%s': %w", tableName, err)
	}
	return nil
}

// BatchGetItems fetches the given keys and unmarshals the found
// documents into out, a pointer to a slice. Missing keys are skipped
// and the result order is not the key order.
func (ds *DynamoService) BatchGetItems(ctx context.Context, tableName string, keys []Key, out interface{}) error {
	const maxBatchSize = 100

	var items []map[string]types.AttributeValue
	for start := 0; start < len(keys); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(keys) {
			end = len(keys)
		}

		requestKeys := make([]map[string]types.AttributeValue, 0, end-start)
		for _, key := range keys[start:end] {
			requestKeys = append(requestKeys, utils.KeyAttributes(key))
		}

		// Unprocessed keys are retried until DynamoDB drains them.
		for len(requestKeys) > 0 {
			output, err := ds.Client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
				RequestItems: map[string]types.KeysAndAttributes{
					tableName: {Keys: requestKeys},
				},
			})
			if err != nil {
				return fmt.Errorf("failed to batch get items from table '%s': %w", tableName, err)
			}
			items = append(items, output.Responses[tableName]...)
			requestKeys = nil
			if unprocessed, ok := output.UnprocessedKeys[tableName]; ok {
				requestKeys = unprocessed.Keys
			}
		}
	}

	if err := attributevalue.UnmarshalListOfMaps(items, out); err != nil {
		return fmt.Errorf("failed to unmarshal batch get result: %w", err)
	}
	return nil
}

// ScanItems scans the full table, optionally filtered, and unmarshals
// the matches into out, a pointer to a slice.
func (ds *DynamoService) ScanItems(ctx context.Context, tableName string, filter *ScanFilter, out interface{}) error {
	input := &dynamodb.ScanInput{TableName: &tableName}
	if err := applyScanFilter(filter, input); err != nil {
		return err
	}

	var items []map[string]types.AttributeValue
	for {
		output, err := ds.Client.Scan(ctx, input)
		if err != nil {
			return fmt.Errorf("failed to scan table '%s': %w", tableName, err)
		}
		items = append(items, output.Items...)
		if output.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = output.LastEvaluatedKey
	}

	if err := attributevalue.UnmarshalListOfMaps(items, out); err != nil {
		return fmt.Errorf("failed to unmarshal scan result: %w", err)
	}
	return nil
}

// CountItems counts documents matching the filter without fetching them.
func (ds *DynamoService) CountItems(ctx context.Context, tableName string, filter *ScanFilter) (int, error) {
	input := &dynamodb.ScanInput{
		TableName: &tableName,
		Select:    types.SelectCount,
	}
	if err := applyScanFilter(filter, input); err != nil {
		return 0, err
	}

	total := 0
	for {
		output, err := ds.Client.Scan(ctx, input)
		if err != nil {
			return 0, fmt.Errorf("failed to count items in table '%s': %w", tableName, err)
		}
		total += int(output.Count)
		if output.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = output.LastEvaluatedKey
	}
	return total, nil
}

// Commit applies every operation atomically via TransactWriteItems.
// Either all operations land or none do; any failed condition cancels
// the whole transaction with ErrConditionFailed.
func (ds *DynamoService) Commit(ctx context.Context, ops []WriteOp) error {
	if len(ops) == 0 {
		return nil
	}
	if len(ops) > models.MaxCommitOps {
		return fmt.Errorf("%d operations: %w", len(ops), ErrTooManyOps)
	}

	transactItems := make([]types.TransactWriteItem, 0, len(ops))
	for _, op := range ops {
		item, err := transactItem(op)
		if err != nil {
			return err
		}
		transactItems = append(transactItems, item)
	}

	_, err := ds.Client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: transactItems,
	})
	if err != nil {
		if utils.IsConditionalCheckFailure(err) {
			return fmt.Errorf("transaction canceled: %w", ErrConditionFailed)
		}
		log.Printf("❌ Transaction of %d ops failed: %v", len(ops), err)
		return fmt.Errorf("failed to commit %d operations: %w", len(ops), err)
	}
	return nil
}

func transactItem(op WriteOp) (types.TransactWriteItem, error) {
	var condExpr *string
	names := map[string]string{}
	values := map[string]types.AttributeValue{}

	switch op.Kind {
	case WriteOpPut:
		marshaledItem, err := attributevalue.MarshalMap(op.Item)
		if err != nil {
			return types.TransactWriteItem{}, fmt.Errorf("failed to marshal item for table '%s': %w", op.Table, err)
		}
		if err := applyConditions(op.Conditions, &condExpr, &names, &values); err != nil {
			return types.TransactWriteItem{}, err
		}
		put := &types.Put{
			TableName:           aws.String(op.Table),
			Item:                marshaledItem,
			ConditionExpression: condExpr,
		}
		if len(names) > 0 {
			put.ExpressionAttributeNames = names
		}
		if len(values) > 0 {
			put.ExpressionAttributeValues = values
		}
		return types.TransactWriteItem{Put: put}, nil

	case WriteOpUpdate:
		expr, updateNames, updateValues, err := buildUpdateExpression(op.Mutations)
		if err != nil {
			return types.TransactWriteItem{}, err
		}
		names = updateNames
		values = updateValues
		if err := applyConditions(op.Conditions, &condExpr, &names, &values); err != nil {
			return types.TransactWriteItem{}, err
		}
		update := &types.Update{
			TableName:                aws.String(op.Table),
			Key:                      utils.KeyAttributes(op.Key),
			UpdateExpression:         aws.String(expr),
			ConditionExpression:      condExpr,
			ExpressionAttributeNames: names,
		}
		if len(values) > 0 {
			update.ExpressionAttributeValues = values
		}
		return types.TransactWriteItem{Update: update}, nil

	case WriteOpDelete:
		if err := applyConditions(op.Conditions, &condExpr, &names, &values); err != nil {
			return types.TransactWriteItem{}, err
		}
		del := &types.Delete{
			TableName:           aws.String(op.Table),
			Key:                 utils.KeyAttributes(op.Key),
			ConditionExpression: condExpr,
		}
		if len(names) > 0 {
			del.ExpressionAttributeNames = names
		}
		if len(values) > 0 {
			del.ExpressionAttributeValues = values
		}
		return types.TransactWriteItem{Delete: del}, nil
	}
	return types.TransactWriteItem{}, fmt.Errorf("unknown write op kind %d: %w", op.Kind, ErrInvalidInput)
}

// buildUpdateExpression renders mutations into one DynamoDB update
// expression, grouping them under their SET / ADD / DELETE / REMOVE
// clauses.
func buildUpdateExpression(muts []Mutation) (string, map[string]string, map[string]types.AttributeValue, error) {
	if len(muts) == 0 {
		return "", nil, nil, fmt.Errorf("update failed: no mutations: %w", ErrInvalidInput)
	}

	names := map[string]string{}
	values := map[string]types.AttributeValue{}
	var setParts, addParts, deleteParts, removeParts []string

	for i, mut := range muts {
		nameRef := fmt.Sprintf("#m%d", i)
		valueRef := fmt.Sprintf(":m%d", i)
		names[nameRef] = mut.Attr

		switch mut.Kind {
		case MutationSet:
			av, err := attributevalue.Marshal(mut.Value)
			if err != nil {
				return "", nil, nil, fmt.Errorf("failed to marshal value for '%s': %w", mut.Attr, err)
			}
			values[valueRef] = av
			setParts = append(setParts, fmt.Sprintf("%s = %s", nameRef, valueRef))

		case MutationAddToSet:
			if len(mut.Members) == 0 {
				return "", nil, nil, fmt.Errorf("add to set '%s': no members: %w", mut.Attr, ErrInvalidInput)
			}
			values[valueRef] = &types.AttributeValueMemberSS{Value: mut.Members}
			addParts = append(addParts, fmt.Sprintf("%s %s", nameRef, valueRef))

		case MutationRemoveFromSet:
			if len(mut.Members) == 0 {
				return "", nil, nil, fmt.Errorf("remove from set '%s': no members: %w", mut.Attr, ErrInvalidInput)
			}
			values[valueRef] = &types.AttributeValueMemberSS{Value: mut.Members}
			deleteParts = append(deleteParts, fmt.Sprintf("%s %s", nameRef, valueRef))

		case MutationIncrement:
			values[valueRef] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", mut.Delta)}
			addParts = append(addParts, fmt.Sprintf("%s %s", nameRef, valueRef))

		case MutationListAppend:
			av, err := attributevalue.Marshal(mut.Value)
			if err != nil {
				return "", nil, nil, fmt.Errorf("failed to marshal value for '%s': %w", mut.Attr, err)
			}
			values[valueRef] = &types.AttributeValueMemberL{Value: []types.AttributeValue{av}}
			values[":empty"] = &types.AttributeValueMemberL{Value: []types.AttributeValue{}}
			setParts = append(setParts, fmt.Sprintf("%s = list_append(if_not_exists(%s, :empty), %s)", nameRef, nameRef, valueRef))

		case MutationRemoveAttr:
			removeParts = append(removeParts, nameRef)

		default:
			return "", nil, nil, fmt.Errorf("unknown mutation kind %d: %w", mut.Kind, ErrInvalidInput)
		}
	}

	var clauses []string
	if len(setParts) > 0 {
		clauses = append(clauses, "SET "+strings.Join(setParts, ", "))
	}
	if len(addParts) > 0 {
		clauses = append(clauses, "ADD "+strings.Join(addParts, ", "))
	}
	if len(deleteParts) > 0 {
		clauses = append(clauses, "DELETE "+strings.Join(deleteParts, ", "))
	}
	if len(removeParts) > 0 {
		clauses = append(clauses, "REMOVE "+strings.Join(removeParts, ", "))
	}
	return strings.Join(clauses, " "), names, values, nil
}

// applyConditions renders conditions into a ConditionExpression on top
// of whatever names/values the update already claimed.
func applyConditions(conds []Condition, expr **string, names *map[string]string, values *map[string]types.AttributeValue) error {
	if len(conds) == 0 {
		return nil
	}
	if *names == nil {
		*names = map[string]string{}
	}

	var parts []string
	for i, cond := range conds {
		nameRef := fmt.Sprintf("#c%d", i)
		valueRef := fmt.Sprintf(":c%d", i)
		(*names)[nameRef] = cond.Attr

		switch cond.Kind {
		case ConditionAttrNotExists:
			parts = append(parts, fmt.Sprintf("attribute_not_exists(%s)", nameRef))
		case ConditionAttrExists:
			parts = append(parts, fmt.Sprintf("attribute_exists(%s)", nameRef))
		case ConditionEquals:
			av, err := attributevalue.Marshal(cond.Value)
			if err != nil {
				return fmt.Errorf("failed to marshal condition value for '%s': %w", cond.Attr, err)
			}
			if *values == nil {
				*values = map[string]types.AttributeValue{}
			}
			(*values)[valueRef] = av
			parts = append(parts, fmt.Sprintf("%s = %s", nameRef, valueRef))
		default:
			return fmt.Errorf("unknown condition kind %d: %w", cond.Kind, ErrInvalidInput)
		}
	}

	joined := strings.Join(parts, " AND ")
	*expr = &joined
	return nil
}

var comparatorForOp = map[string]string{
	"eq": "=",
	"ne": "<>",
	"lt": "<",
	"le": "<=",
	"gt": ">",
	"ge": ">=",
}

func applyScanFilter(filter *ScanFilter, input *dynamodb.ScanInput) error {
	if filter == nil {
		return nil
	}
	comparator, ok := comparatorForOp[filter.Op]
	if !ok {
		return fmt.Errorf("unknown filter op '%s': %w", filter.Op, ErrInvalidInput)
	}
	av, err := attributevalue.Marshal(filter.Value)
	if err != nil {
		return fmt.Errorf("failed to marshal filter value for '%s': %w", filter.Attr, err)
	}
	input.FilterExpression = aws.String(fmt.Sprintf("#f0 %s :f0", comparator))
	input.ExpressionAttributeNames = map[string]string{"#f0": filter.Attr}
	input.ExpressionAttributeValues = map[string]types.AttributeValue{":f0": av}
	return nil
}
