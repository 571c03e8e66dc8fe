package services

import (
	"context"
	"errors"
)

// Store-level sentinels. DocumentStore implementations translate their
// backend's failures into these so callers can branch without knowing
// which backend is wired in.
var (
	ErrItemNotFound    = errors.New("item not found")
	ErrConditionFailed = errors.New("conditional check failed")
	ErrTooManyOps      = errors.New("too many operations for one commit")
)

// Key identifies a single document by its table key attributes.
type Key map[string]string

// MutationKind enumerates the single-attribute mutations UpdateItem and
// update WriteOps support.
type MutationKind int

const (
	MutationSet MutationKind = iota
	MutationAddToSet
	MutationRemoveFromSet
	MutationIncrement
	MutationListAppend
	MutationRemoveAttr
)

// Mutation is one attribute change inside an update. Set-membership
// mutations operate on string sets and are idempotent; Increment adds a
// signed delta to a numeric attribute, treating a missing attribute as
// zero. An update may touch each attribute at most once.
type Mutation struct {
	Kind    MutationKind
	Attr    string
	Value   interface{}
	Members []string // AddToSet / RemoveFromSet
	Delta   int      // Increment
}

func Set(attr string, value interface{}) Mutation {
	return Mutation{Kind: MutationSet, Attr: attr, Value: value}
}

func AddToSet(attr string, members ...string) Mutation {
	return Mutation{Kind: MutationAddToSet, Attr: attr, Members: members}
}

func RemoveFromSet(attr string, members ...string) Mutation {
	return Mutation{Kind: MutationRemoveFromSet, Attr: attr, Members: members}
}

func Increment(attr string, delta int) Mutation {
	return Mutation{Kind: MutationIncrement, Attr: attr, Delta: delta}
}

func ListAppend(attr string, value interface{}) Mutation {
	return Mutation{Kind: MutationListAppend, Attr: attr, Value: value}
}

func RemoveAttr(attr string) Mutation {
	return Mutation{Kind: MutationRemoveAttr, Attr: attr}
}

// ConditionKind enumerates supported write preconditions.
type ConditionKind int

const (
	ConditionAttrNotExists ConditionKind = iota
	ConditionAttrExists
	ConditionEquals
)

// Condition guards a write. When any condition fails the write is
// rejected with ErrConditionFailed and nothing is applied.
type Condition struct {
	Kind  ConditionKind
	Attr  string
	Value interface{}
}

func IfAttrNotExists(attr string) Condition {
	return Condition{Kind: ConditionAttrNotExists, Attr: attr}
}

func IfAttrExists(attr string) Condition {
	return Condition{Kind: ConditionAttrExists, Attr: attr}
}

func IfEquals(attr string, value interface{}) Condition {
	return Condition{Kind: ConditionEquals, Attr: attr, Value: value}
}

// WriteOpKind enumerates the operations a commit can carry.
type WriteOpKind int

const (
	WriteOpPut WriteOpKind = iota
	WriteOpUpdate
	WriteOpDelete
)

// WriteOp is one operation inside an atomic Commit. A commit may touch
// each document at most once.
type WriteOp struct {
	Kind       WriteOpKind
	Table      string
	Key        Key         // Update / Delete
	Item       interface{} // Put
	Mutations  []Mutation  // Update
	Conditions []Condition
}

func PutOp(table string, item interface{}, conds ...Condition) WriteOp {
	return WriteOp{Kind: WriteOpPut, Table: table, Item: item, Conditions: conds}
}

func UpdateOp(table string, key Key, muts []Mutation, conds ...Condition) WriteOp {
	return WriteOp{Kind: WriteOpUpdate, Table: table, Key: key, Mutations: muts, Conditions: conds}
}

func DeleteOp(table string, key Key, conds ...Condition) WriteOp {
	return WriteOp{Kind: WriteOpDelete, Table: table, Key: key, Conditions: conds}
}

// ScanFilter restricts a scan or count to documents whose attribute
// compares true against Value. Op is one of "eq", "ne", "lt", "le",
// "gt", "ge". A nil filter matches everything.
type ScanFilter struct {
	Attr  string
	Op    string
	Value interface{}
}

// DocumentStore is the persistence boundary shared by all services.
// DynamoService implements it against DynamoDB; MemoryStore implements
// it in-process for tests. UpdateItem upserts: a missing document is
// created from its key plus the mutation results. Commit applies every
// operation atomically or none of them, and rejects op lists longer
// than models.MaxCommitOps with ErrTooManyOps. Condition failures
// surface as ErrConditionFailed, point reads of absent documents as
// ErrItemNotFound.
type DocumentStore interface {
	GetItem(ctx context.Context, table string, key Key, out interface{}) error
	PutItem(ctx context.Context, table string, item interface{}, conds ...Condition) error
	UpdateItem(ctx context.Context, table string, key Key, muts []Mutation, conds ...Condition) error
	DeleteItem(ctx context.Context, table string, key Key) error
	BatchGetItems(ctx context.Context, table string, keys []Key, out interface{}) error
	ScanItems(ctx context.Context, table string, filter *ScanFilter, out interface{}) error
	CountItems(ctx context.Context, table string, filter *ScanFilter) (int, error)
	Commit(ctx context.Context, ops []WriteOp) error
}
