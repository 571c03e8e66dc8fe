package services

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"showmates_server/models"
)

// tableKeySchemas lists the key attributes per table, in key order.
var tableKeySchemas = map[string][]string{
	models.UserProfilesTable:   {"userId"},
	models.ShowFollowersTable:  {"showId"},
	models.MatchesTable:        {"matchId"},
	models.ConversationsTable:  {"conversationId"},
	models.MessageBatchesTable: {"conversationId", "batchId"},
}

// MemoryStore is an in-process DocumentStore for tests and local runs.
// It stores marshaled attribute maps so the same attributevalue codec
// path runs as against DynamoDB, including string-set and numeric
// attribute semantics.
type MemoryStore struct {
	mu     sync.Mutex
	tables map[string]map[string]map[string]types.AttributeValue

	// BeforeCommit, when set, runs before a commit touches any state.
	// Returning an error aborts the commit with that error.
	BeforeCommit func(ops []WriteOp) error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: map[string]map[string]map[string]types.AttributeValue{}}
}

func (ms *MemoryStore) table(name string) (map[string]map[string]types.AttributeValue, error) {
	if _, known := tableKeySchemas[name]; !known {
		return nil, fmt.Errorf("unknown table '%s': %w", name, ErrInvalidInput)
	}
	if ms.tables[name] == nil {
		ms.tables[name] = map[string]map[string]types.AttributeValue{}
	}
	return ms.tables[name], nil
}

func canonicalKey(tableName string, key Key) (string, error) {
	attrs := tableKeySchemas[tableName]
	ck := ""
	for _, attr := range attrs {
		value, ok := key[attr]
		if !ok || value == "" {
			return "", fmt.Errorf("table '%s': missing key attribute '%s': %w", tableName, attr, ErrInvalidInput)
		}
		ck += attr + "=" + value + "|"
	}
	return ck, nil
}

func itemKey(tableName string, item map[string]types.AttributeValue) (string, error) {
	key := Key{}
	for _, attr := range tableKeySchemas[tableName] {
		member, ok := item[attr].(*types.AttributeValueMemberS)
		if !ok {
			return "", fmt.Errorf("table '%s': item lacks string key attribute '%s': %w", tableName, attr, ErrInvalidInput)
		}
		key[attr] = member.Value
	}
	return canonicalKey(tableName, key)
}

func cloneItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	clone := make(map[string]types.AttributeValue, len(item))
	for attr, value := range item {
		clone[attr] = value
	}
	return clone
}

func (ms *MemoryStore) GetItem(ctx context.Context, tableName string, key Key, out interface{}) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	table, err := ms.table(tableName)
	if err != nil {
		return err
	}
	ck, err := canonicalKey(tableName, key)
	if err != nil {
		return err
	}
	item, ok := table[ck]
	if !ok {
		return fmt.Errorf("table '%s': %w", tableName, ErrItemNotFound)
	}
	if err := attributevalue.UnmarshalMap(item, out); err != nil {
		return fmt.Errorf("failed to unmarshal item from table '%s': %w", tableName, err)
	}
	return nil
}

func (ms *MemoryStore) PutItem(ctx context.Context, tableName string, item interface{}, conds ...Condition) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.putLocked(tableName, item, conds)
}

func (ms *MemoryStore) putLocked(tableName string, item interface{}, conds []Condition) error {
	table, err := ms.table(tableName)
	if err != nil {
		return err
	}
	marshaledItem, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}
	ck, err := itemKey(tableName, marshaledItem)
	if err != nil {
		return err
	}
	if err := checkConditions(table[ck], conds); err != nil {
		return fmt.Errorf("put in table '%s': %w", tableName, err)
	}
	table[ck] = marshaledItem
	return nil
}

func (ms *MemoryStore) UpdateItem(ctx context.Context, tableName string, key Key, muts []Mutation, conds ...Condition) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.updateLocked(tableName, key, muts, conds)
}

func (ms *MemoryStore) updateLocked(tableName string, key Key, muts []Mutation, conds []Condition) error {
	if len(muts) == 0 {
		return fmt.Errorf("update failed: no mutations: %w", ErrInvalidInput)
	}
	table, err := ms.table(tableName)
	if err != nil {
		return err
	}
	ck, err := canonicalKey(tableName, key)
	if err != nil {
		return err
	}

	existing := table[ck]
	if err := checkConditions(existing, conds); err != nil {
		return fmt.Errorf("update in table '%s': %w", tableName, err)
	}

	// Upsert semantics: a missing document starts from its key attrs.
	var updated map[string]types.AttributeValue
	if existing == nil {
		updated = map[string]types.AttributeValue{}
		for attr, value := range key {
			updated[attr] = &types.AttributeValueMemberS{Value: value}
		}
	} else {
		updated = cloneItem(existing)
	}

	if err := applyMutations(updated, muts); err != nil {
		return fmt.Errorf("update in table '%s': %w", tableName, err)
	}
	table[ck] = updated
	return nil
}

func (ms *MemoryStore) DeleteItem(ctx context.Context, tableName string, key Key) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	table, err := ms.table(tableName)
	if err != nil {
		return err
	}
	ck, err := canonicalKey(tableName, key)
	if err != nil {
		return err
	}
	delete(table, ck)
	return nil
}

func (ms *MemoryStore) BatchGetItems(ctx context.Context, tableName string, keys []Key, out interface{}) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	table, err := ms.table(tableName)
	if err != nil {
		return err
	}
	var items []map[string]types.AttributeValue
	for _, key := range keys {
		ck, err := canonicalKey(tableName, key)
		if err != nil {
			return err
		}
		if item, ok := table[ck]; ok {
			items = append(items, item)
		}
	}
	if err := attributevalue.UnmarshalListOfMaps(items, out); err != nil {
		return fmt.Errorf("failed to unmarshal batch get result: %w", err)
	}
	return nil
}

func (ms *MemoryStore) ScanItems(ctx context.Context, tableName string, filter *ScanFilter, out interface{}) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	items, err := ms.scanLocked(tableName, filter)
	if err != nil {
		return err
	}
	if err := attributevalue.UnmarshalListOfMaps(items, out); err != nil {
		return fmt.Errorf("failed to unmarshal scan result: %w", err)
	}
	return nil
}

func (ms *MemoryStore) CountItems(ctx context.Context, tableName string, filter *ScanFilter) (int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	items, err := ms.scanLocked(tableName, filter)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

// scanLocked returns matching items in canonical key order so scans are
// deterministic under test.
func (ms *MemoryStore) scanLocked(tableName string, filter *ScanFilter) ([]map[string]types.AttributeValue, error) {
	table, err := ms.table(tableName)
	if err != nil {
		return nil, err
	}
	cks := make([]string, 0, len(table))
	for ck := range table {
		cks = append(cks, ck)
	}
	sort.Strings(cks)

	var items []map[string]types.AttributeValue
	for _, ck := range cks {
		item := table[ck]
		match, err := matchesFilter(item, filter)
		if err != nil {
			return nil, err
		}
		if match {
			items = append(items, item)
		}
	}
	return items, nil
}

// Commit validates every operation against the pre-commit state, then
// applies all of them. Any condition failure or marshal error leaves
// the store untouched.
func (ms *MemoryStore) Commit(ctx context.Context, ops []WriteOp) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.BeforeCommit != nil {
		if err := ms.BeforeCommit(ops); err != nil {
			return err
		}
	}
	if len(ops) == 0 {
		return nil
	}
	if len(ops) > models.MaxCommitOps {
		return fmt.Errorf("%d operations: %w", len(ops), ErrTooManyOps)
	}

	type staged struct {
		tableName string
		ck        string
		item      map[string]types.AttributeValue // nil means delete
	}
	var plan []staged

	for _, op := range ops {
		table, err := ms.table(op.Table)
		if err != nil {
			return err
		}

		switch op.Kind {
		case WriteOpPut:
			marshaledItem, err := attributevalue.MarshalMap(op.Item)
			if err != nil {
				return fmt.Errorf("failed to marshal item for table '%s': %w", op.Table, err)
			}
			ck, err := itemKey(op.Table, marshaledItem)
			if err != nil {
				return err
			}
			if err := checkConditions(table[ck], op.Conditions); err != nil {
				return fmt.Errorf("transaction canceled: put in table '%s': %w", op.Table, err)
			}
			plan = append(plan, staged{op.Table, ck, marshaledItem})

		case WriteOpUpdate:
			ck, err := canonicalKey(op.Table, op.Key)
			if err != nil {
				return err
			}
			existing := table[ck]
			if err := checkConditions(existing, op.Conditions); err != nil {
				return fmt.Errorf("transaction canceled: update in table '%s': %w", op.Table, err)
			}
			var updated map[string]types.AttributeValue
			if existing == nil {
				updated = map[string]types.AttributeValue{}
				for attr, value := range op.Key {
					updated[attr] = &types.AttributeValueMemberS{Value: value}
				}
			} else {
				updated = cloneItem(existing)
			}
			if err := applyMutations(updated, op.Mutations); err != nil {
				return fmt.Errorf("transaction canceled: update in table '%s': %w", op.Table, err)
			}
			plan = append(plan, staged{op.Table, ck, updated})

		case WriteOpDelete:
			ck, err := canonicalKey(op.Table, op.Key)
			if err != nil {
				return err
			}
			if err := checkConditions(table[ck], op.Conditions); err != nil {
				return fmt.Errorf("transaction canceled: delete in table '%s': %w", op.Table, err)
			}
			plan = append(plan, staged{op.Table, ck, nil})

		default:
			return fmt.Errorf("unknown write op kind %d: %w", op.Kind, ErrInvalidInput)
		}
	}

	for _, entry := range plan {
		if entry.item == nil {
			delete(ms.tables[entry.tableName], entry.ck)
		} else {
			ms.tables[entry.tableName][entry.ck] = entry.item
		}
	}
	return nil
}

func checkConditions(item map[string]types.AttributeValue, conds []Condition) error {
	for _, cond := range conds {
		switch cond.Kind {
		case ConditionAttrNotExists:
			if item != nil {
				if _, present := item[cond.Attr]; present {
					return fmt.Errorf("attribute '%s' exists: %w", cond.Attr, ErrConditionFailed)
				}
			}
		case ConditionAttrExists:
			if item == nil {
				return fmt.Errorf("attribute '%s' missing: %w", cond.Attr, ErrConditionFailed)
			}
			if _, present := item[cond.Attr]; !present {
				return fmt.Errorf("attribute '%s' missing: %w", cond.Attr, ErrConditionFailed)
			}
		case ConditionEquals:
			if item == nil {
				return fmt.Errorf("attribute '%s' missing: %w", cond.Attr, ErrConditionFailed)
			}
			want, err := attributevalue.Marshal(cond.Value)
			if err != nil {
				return fmt.Errorf("failed to marshal condition value for '%s': %w", cond.Attr, err)
			}
			got, present := item[cond.Attr]
			if !present || !attrEqual(got, want) {
				return fmt.Errorf("attribute '%s' mismatch: %w", cond.Attr, ErrConditionFailed)
			}
		default:
			return fmt.Errorf("unknown condition kind %d: %w", cond.Kind, ErrInvalidInput)
		}
	}
	return nil
}

// attrEqual compares attribute values structurally. String sets compare
// as sets since DynamoDB does not order their members.
func attrEqual(a, b types.AttributeValue) bool {
	setA, okA := a.(*types.AttributeValueMemberSS)
	setB, okB := b.(*types.AttributeValueMemberSS)
	if okA && okB {
		sortedA := append([]string(nil), setA.Value...)
		sortedB := append([]string(nil), setB.Value...)
		sort.Strings(sortedA)
		sort.Strings(sortedB)
		return reflect.DeepEqual(sortedA, sortedB)
	}
	return reflect.DeepEqual(a, b)
}

func applyMutations(item map[string]types.AttributeValue, muts []Mutation) error {
	for _, mut := range muts {
		switch mut.Kind {
		case MutationSet:
			av, err := attributevalue.Marshal(mut.Value)
			if err != nil {
				return fmt.Errorf("failed to marshal value for '%s': %w", mut.Attr, err)
			}
			item[mut.Attr] = av

		case MutationAddToSet:
			if len(mut.Members) == 0 {
				return fmt.Errorf("add to set '%s': no members: %w", mut.Attr, ErrInvalidInput)
			}
			members := map[string]struct{}{}
			if existing, ok := item[mut.Attr].(*types.AttributeValueMemberSS); ok {
				for _, member := range existing.Value {
					members[member] = struct{}{}
				}
			}
			for _, member := range mut.Members {
				members[member] = struct{}{}
			}
			item[mut.Attr] = &types.AttributeValueMemberSS{Value: sortedMembers(members)}

		case MutationRemoveFromSet:
			if len(mut.Members) == 0 {
				return fmt.Errorf("remove from set '%s': no members: %w", mut.Attr, ErrInvalidInput)
			}
			members := map[string]struct{}{}
			if existing, ok := item[mut.Attr].(*types.AttributeValueMemberSS); ok {
				for _, member := range existing.Value {
					members[member] = struct{}{}
				}
			}
			for _, member := range mut.Members {
				delete(members, member)
			}
			// DynamoDB drops a string set that loses its last member.
			if len(members) == 0 {
				delete(item, mut.Attr)
			} else {
				item[mut.Attr] = &types.AttributeValueMemberSS{Value: sortedMembers(members)}
			}

		case MutationIncrement:
			current := int64(0)
			if existing, ok := item[mut.Attr].(*types.AttributeValueMemberN); ok {
				parsed, err := strconv.ParseInt(existing.Value, 10, 64)
				if err != nil {
					return fmt.Errorf("attribute '%s' is not an integer: %w", mut.Attr, err)
				}
				current = parsed
			}
			item[mut.Attr] = &types.AttributeValueMemberN{Value: strconv.FormatInt(current+int64(mut.Delta), 10)}

		case MutationListAppend:
			av, err := attributevalue.Marshal(mut.Value)
			if err != nil {
				return fmt.Errorf("failed to marshal value for '%s': %w", mut.Attr, err)
			}
			var elements []types.AttributeValue
			if existing, ok := item[mut.Attr].(*types.AttributeValueMemberL); ok {
				elements = append(elements, existing.Value...)
			}
			item[mut.Attr] = &types.AttributeValueMemberL{Value: append(elements, av)}

		case MutationRemoveAttr:
			delete(item, mut.Attr)

		default:
			return fmt.Errorf("unknown mutation kind %d: %w", mut.Kind, ErrInvalidInput)
		}
	}
	return nil
}

func sortedMembers(members map[string]struct{}) []string {
	out := make([]string, 0, len(members))
	for member := range members {
		out = append(out, member)
	}
	sort.Strings(out)
	return out
}

func matchesFilter(item map[string]types.AttributeValue, filter *ScanFilter) (bool, error) {
	if filter == nil {
		return true, nil
	}
	if _, known := comparatorForOp[filter.Op]; !known {
		return false, fmt.Errorf("unknown filter op '%s': %w", filter.Op, ErrInvalidInput)
	}
	got, present := item[filter.Attr]
	if !present {
		return false, nil
	}
	want, err := attributevalue.Marshal(filter.Value)
	if err != nil {
		return false, fmt.Errorf("failed to marshal filter value for '%s': %w", filter.Attr, err)
	}

	switch gotValue := got.(type) {
	case *types.AttributeValueMemberN:
		wantNumber, ok := want.(*types.AttributeValueMemberN)
		if !ok {
			return false, nil
		}
		gotFloat, err1 := strconv.ParseFloat(gotValue.Value, 64)
		wantFloat, err2 := strconv.ParseFloat(wantNumber.Value, 64)
		if err1 != nil || err2 != nil {
			return false, nil
		}
		return compareFloats(gotFloat, wantFloat, filter.Op), nil
	case *types.AttributeValueMemberS:
		wantString, ok := want.(*types.AttributeValueMemberS)
		if !ok {
			return false, nil
		}
		return compareStrings(gotValue.Value, wantString.Value, filter.Op), nil
	}
	return false, nil
}

func compareFloats(got, want float64, op string) bool {
	switch op {
	case "eq":
		return got == want
	case "ne":
		return got != want
	case "lt":
		return got < want
	case "le":
		return got <= want
	case "gt":
		return got > want
	case "ge":
		return got >= want
	}
	return false
}

func compareStrings(got, want string, op string) bool {
	switch op {
	case "eq":
		return got == want
	case "ne":
		return got != want
	case "lt":
		return got < want
	case "le":
		return got <= want
	case "gt":
		return got > want
	case "ge":
		return got >= want
	}
	return false
}
