package pagedstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	// PartitionKey is the DynamoDB partition key attribute name.
	PartitionKey = "pk"

	// SortKey is the DynamoDB sort key attribute name.
	SortKey = "sk"

	// BodyAttr is the attribute name used to store the JSON-encoded body of
	// a record. Guard rows carry no body.
	BodyAttr = "body"

	// FleetAttr is the attribute name that marks a record as visible in the
	// fleet-wide view. It serves as the partition key for [FleetIndex].
	FleetAttr = "fleet"

	// GSIFleet is the name of the Global Secondary Index used for fleet-wide
	// queries. Partition key: fleet, sort key: sk, projected attribute: body.
	GSIFleet = "GSIFleet"

	// querySortUpperBound is appended to the upper prefix of a BETWEEN range
	// so the bound covers every key starting with that prefix. '~' sorts
	// after every character used in key parts (digits, letters, '#', '-').
	querySortUpperBound = "~"
)

// Index identifies the secondary index a [Query] runs against. The zero
// value selects the base table. The caller chooses the index explicitly;
// inferring it from data risks reading the wrong tenant's slice.
type Index struct {
	Name          string
	PartitionAttr string
	SortAttr      string
}

// FleetIndex is the fleet-wide (control tower) view over fleet-visible rows.
var FleetIndex = Index{Name: GSIFleet, PartitionAttr: FleetAttr, SortAttr: SortKey}

// Key addresses one stored row: a partition key value plus the ordered parts
// of its composite sort key. Attrs are extra top-level string attributes
// written on that row only, e.g. the [FleetAttr] marker that projects a
// single mirror of an entity into the fleet-wide index.
type Key struct {
	Partition string
	SortParts []string
	Attrs     map[string]string
}

// Record is one logical entity to persist, possibly mirrored under several
// keys so it is reachable by more than one axis. All keys are written in a
// single transaction so mirrors cannot diverge. Guards are bodyless rows
// written with attribute_not_exists(pk); a guard that already exists fails
// the whole transaction with [ErrConditionFailed].
type Record[T any] struct {
	Item   T
	Keys   []Key
	Guards []Key
}

// ErrConditionFailed reports a conditional write whose condition did not
// hold, e.g. a guard row that already exists.
var ErrConditionFailed = errors.New("conditional write failed")

// Page is one page of query results plus the cursor for the next page.
// An empty NextCursor means the result set is exhausted.
type Page[T any] struct {
	Items      []T
	NextCursor string
}

// ErrPageOutOfRange reports a numbered-page request beyond the last page.
var ErrPageOutOfRange = errors.New("page number out of range")

// Query describes one paginated range query. Prefix restricts the sort key
// with begins_with; when Upper is also given the condition becomes a BETWEEN
// over the two composed bounds. Results are ascending by sort key unless
// Descending is set.
type Query struct {
	Partition  string
	Prefix     []string
	Upper      []string
	Index      Index
	Descending bool
	Cursor     string
	Limit      int32
}

// Store is a type-parameterized paginated query layer over the partitioned
// store. Use [New] to create one and [Store.Connect] to initialize the
// underlying DynamoDB connection.
type Store[T any] struct {
	client    API
	tableName string
	awsCfg    *aws.Config
	opts      *Options
}

// New creates a Store configured with the given AWS config, table name, and
// options. Call [Store.Connect] on the returned store before use.
func New[T any](awsCfg *aws.Config, tableName string, opts ...Option) *Store[T] {
	options := newOptions()

	for _, o := range opts {
		o(options)
	}

	return &Store[T]{
		awsCfg:    awsCfg,
		tableName: tableName,
		opts:      options,
	}
}

// Connect initializes the DynamoDB client from the AWS config provided to
// [New]. It must complete before the Store is used concurrently.
func (s *Store[T]) Connect() error {
	if err := s.opts.validate(); err != nil {
		return fmt.Errorf("invalid store options: %w", err)
	}

	// Use injected DynamoDB API if provided (useful for testing).
	if s.opts.api != nil {
		s.client = s.opts.api
	} else {
		s.client = dynamodb.NewFromConfig(*s.awsCfg)
	}

	return nil
}

// Init validates the table schema: composite primary key (pk, sk) and the
// [GSIFleet] secondary index. Pass skipSchemaValidation true to skip all
// checks, which is useful when schema management lives elsewhere.
func (s *Store[T]) Init(ctx context.Context, skipSchemaValidation bool) error {
	if skipSchemaValidation {
		return nil
	}

	input := &dynamodb.DescribeTableInput{
		TableName: aws.String(s.tableName),
	}

	response, err := s.client.DescribeTable(ctx, input)
	if err != nil {
		var notFoundError *dynamodbtypes.ResourceNotFoundException
		if errors.As(err, &notFoundError) {
			return fmt.Errorf("table %s does not exist", s.tableName)
		}
		return fmt.Errorf("failed to describe table %s: %w", s.tableName, err)
	}

	if len(response.Table.KeySchema) < 1 {
		return fmt.Errorf("table %s has no key schema", s.tableName)
	}

	if aws.ToString(response.Table.KeySchema[0].AttributeName) != PartitionKey {
		return fmt.Errorf("table %s has partition key %s, expected %s", s.tableName, aws.ToString(response.Table.KeySchema[0].AttributeName), PartitionKey)
	}

	if len(response.Table.KeySchema) < 2 {
		return fmt.Errorf("table %s has a simple primary key, expected composite", s.tableName)
	}

	if aws.ToString(response.Table.KeySchema[1].AttributeName) != SortKey {
		return fmt.Errorf("table %s has sort key %s, expected %s", s.tableName, aws.ToString(response.Table.KeySchema[1].AttributeName), SortKey)
	}

	if response.Table.TableStatus != dynamodbtypes.TableStatusActive {
		return fmt.Errorf("table %s is not active (status: %s)", s.tableName, response.Table.TableStatus)
	}

	// Verify secondary index for fleet-wide queries.
	// Partition key: fleet
	// Sort key: sk
	// Non-key attributes: body
	return verifySecondaryIndex(response.Table, GSIFleet, FleetAttr, SortKey, BodyAttr)
}

// Save persists a record. A single unguarded key is written with PutItem;
// mirrored keys and guard rows are written in one TransactWriteItems call.
func (s *Store[T]) Save(ctx context.Context, rec Record[T]) error {
	if len(rec.Keys) == 0 {
		return errors.New("record must have at least one key")
	}

	attributes, err := s.buildItems(rec)
	if err != nil {
		return err
	}

	if len(attributes) == 1 && len(rec.Guards) == 0 {
		input := &dynamodb.PutItemInput{
			TableName: &s.tableName,
			Item:      attributes[0],
		}

		if _, err = s.client.PutItem(ctx, input); err != nil {
			return fmt.Errorf("failed to write record to DynamoDB table %s: %w", s.tableName, err)
		}

		return nil
	}

	items := make([]dynamodbtypes.TransactWriteItem, 0, len(attributes)+len(rec.Guards))

	for _, attrs := range attributes {
		items = append(items, dynamodbtypes.TransactWriteItem{
			Put: &dynamodbtypes.Put{
				TableName: &s.tableName,
				Item:      attrs,
			},
		})
	}

	for _, guard := range rec.Guards {
		guardAttrs, err := keyAttributes(guard)
		if err != nil {
			return err
		}

		items = append(items, dynamodbtypes.TransactWriteItem{
			Put: &dynamodbtypes.Put{
				TableName:           &s.tableName,
				Item:                guardAttrs,
				ConditionExpression: aws.String("attribute_not_exists(pk)"),
			},
		})
	}

	if _, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items}); err != nil {
		return wrapTransactError(s.tableName, err)
	}

	return nil
}

// Rekey atomically replaces a record's rows: vacated old keys are deleted,
// the new keys written, and any listed guard rows removed, all in one
// transaction. It is used for state transitions that change the sort key and
// for mirrors appearing or disappearing. A transaction may touch each item
// (pk, sk) at most once, so an old key that survives into the new key set is
// not deleted; its Put overwrites the row in place. The vacated rows must
// exist; if one does not, the transaction fails.
func (s *Store[T]) Rekey(ctx context.Context, rec Record[T], oldKeys, unguard []Key) error {
	if len(rec.Keys) == 0 || len(oldKeys) == 0 {
		return errors.New("rekey requires both old and new keys")
	}

	attributes, err := s.buildItems(rec)
	if err != nil {
		return err
	}

	kept := make(map[string]bool, len(rec.Keys))
	for _, key := range rec.Keys {
		id, err := keyIdentity(key)
		if err != nil {
			return err
		}

		kept[id] = true
	}

	items := make([]dynamodbtypes.TransactWriteItem, 0, len(attributes)+len(oldKeys)+len(unguard))

	// ConditionExpression ensures the row being vacated exists before
	// deleting.
	for _, old := range oldKeys {
		id, err := keyIdentity(old)
		if err != nil {
			return err
		}

		if kept[id] {
			continue
		}

		oldAttrs, err := keyAttributes(old)
		if err != nil {
			return err
		}

		items = append(items, dynamodbtypes.TransactWriteItem{
			Delete: &dynamodbtypes.Delete{
				TableName:           &s.tableName,
				ConditionExpression: aws.String("attribute_exists(pk)"),
				Key:                 oldAttrs,
			},
		})
	}

	for _, guard := range unguard {
		guardAttrs, err := keyAttributes(guard)
		if err != nil {
			return err
		}

		items = append(items, dynamodbtypes.TransactWriteItem{
			Delete: &dynamodbtypes.Delete{
				TableName: &s.tableName,
				Key:       guardAttrs,
			},
		})
	}

	for _, attrs := range attributes {
		items = append(items, dynamodbtypes.TransactWriteItem{
			Put: &dynamodbtypes.Put{
				TableName: &s.tableName,
				Item:      attrs,
			},
		})
	}

	if _, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items}); err != nil {
		return wrapTransactError(s.tableName, err)
	}

	return nil
}

// Get retrieves the record stored under key. Returns (nil, nil) if no record
// is found.
func (s *Store[T]) Get(ctx context.Context, key Key) (*T, error) {
	keyAttrs, err := keyAttributes(key)
	if err != nil {
		return nil, err
	}

	input := &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key:       keyAttrs,
	}

	output, err := s.client.GetItem(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to get record from DynamoDB table %s: %w", s.tableName, err)
	}

	if output.Item == nil {
		return nil, nil
	}

	body := getStringValue(output.Item[BodyAttr])
	if body == "" {
		return nil, fmt.Errorf("record %s/%v has no body", key.Partition, key.SortParts)
	}

	var item T
	if err := json.Unmarshal([]byte(body), &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record %s/%v: %w", key.Partition, key.SortParts, err)
	}

	return &item, nil
}

// Query runs one paginated range query and returns a single page of results
// plus the continuation cursor for the next page.
func (s *Store[T]) Query(ctx context.Context, q Query) (*Page[T], error) {
	if q.Partition == "" {
		return nil, errors.New("query partition cannot be empty")
	}

	input, err := s.buildQueryInput(q)
	if err != nil {
		return nil, err
	}

	output, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to query DynamoDB table %s: %w", s.tableName, err)
	}

	items := make([]T, 0, len(output.Items))

	for _, attrs := range output.Items {
		body := getStringValue(attrs[BodyAttr])
		if body == "" {
			return nil, fmt.Errorf("query result in table %s has no body", s.tableName)
		}

		var item T
		if err := json.Unmarshal([]byte(body), &item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal query result: %w", err)
		}

		items = append(items, item)
	}

	nextCursor, err := EncodeCursor(output.LastEvaluatedKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encode continuation cursor: %w", err)
	}

	return &Page[T]{Items: items, NextCursor: nextCursor}, nil
}

// QueryAll walks every page of q and returns the combined results. The
// caller's partition choice bounds the scan; use it only for partitions of
// known moderate size.
func (s *Store[T]) QueryAll(ctx context.Context, q Query) ([]T, error) {
	var items []T

	q.Cursor = ""

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := s.Query(ctx, q)
		if err != nil {
			return nil, err
		}

		items = append(items, page.Items...)

		if page.NextCursor == "" {
			return items, nil
		}

		q.Cursor = page.NextCursor
	}
}

// PageAt walks the cursor chain to return page pageNumber (1-based) of q.
// It fails with [ErrPageOutOfRange] when the store runs out of pages first.
// Each call costs pageNumber queries, so this is only acceptable for small,
// bounded page numbers (admin tooling); user-facing deep pagination must use
// cursor-based [Store.Query].
func (s *Store[T]) PageAt(ctx context.Context, pageNumber int, limit int32, q Query) ([]T, error) {
	if pageNumber < 1 {
		return nil, fmt.Errorf("page number %d: %w", pageNumber, ErrPageOutOfRange)
	}

	q.Limit = limit
	q.Cursor = ""

	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := s.Query(ctx, q)
		if err != nil {
			return nil, err
		}

		if n == pageNumber {
			return page.Items, nil
		}

		if page.NextCursor == "" {
			return nil, fmt.Errorf("page number %d: %w", pageNumber, ErrPageOutOfRange)
		}

		q.Cursor = page.NextCursor
	}
}

func (s *Store[T]) buildQueryInput(q Query) (*dynamodb.QueryInput, error) {
	partitionAttr := q.Index.PartitionAttr
	if partitionAttr == "" {
		partitionAttr = PartitionKey
	}

	sortAttr := q.Index.SortAttr
	if sortAttr == "" {
		sortAttr = SortKey
	}

	values := map[string]dynamodbtypes.AttributeValue{
		":pk": &dynamodbtypes.AttributeValueMemberS{Value: q.Partition},
	}

	condition := partitionAttr + " = :pk"

	lower := ComposeSortKey(q.Prefix...)
	upper := ComposeSortKey(q.Upper...)

	switch {
	case lower != "" && upper != "":
		values[":lo"] = &dynamodbtypes.AttributeValueMemberS{Value: lower}
		values[":hi"] = &dynamodbtypes.AttributeValueMemberS{Value: upper + sortKeySeparator + querySortUpperBound}
		condition += fmt.Sprintf(" AND %s BETWEEN :lo AND :hi", sortAttr)
	case lower != "":
		values[":lo"] = &dynamodbtypes.AttributeValueMemberS{Value: lower}
		condition += fmt.Sprintf(" AND begins_with(%s, :lo)", sortAttr)
	case upper != "":
		return nil, errors.New("query upper bound requires a lower prefix")
	}

	startKey, err := DecodeCursor(q.Cursor)
	if err != nil {
		return nil, err
	}

	limit := q.Limit
	if limit <= 0 {
		limit = s.opts.defaultQueryLimit
	}

	input := &dynamodb.QueryInput{
		TableName:                 &s.tableName,
		KeyConditionExpression:    aws.String(condition),
		ExpressionAttributeValues: values,
		ExclusiveStartKey:         startKey,
		Limit:                     aws.Int32(limit),
		ScanIndexForward:          aws.Bool(!q.Descending),
	}

	if q.Index.Name != "" {
		input.IndexName = aws.String(q.Index.Name)
	}

	return input, nil
}

func (s *Store[T]) buildItems(rec Record[T]) ([]map[string]dynamodbtypes.AttributeValue, error) {
	body, err := json.Marshal(rec.Item)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}

	attributes := make([]map[string]dynamodbtypes.AttributeValue, 0, len(rec.Keys))

	for _, key := range rec.Keys {
		attrs, err := keyAttributes(key)
		if err != nil {
			return nil, err
		}

		attrs[BodyAttr] = &dynamodbtypes.AttributeValueMemberS{Value: string(body)}

		for name, value := range key.Attrs {
			attrs[name] = &dynamodbtypes.AttributeValueMemberS{Value: value}
		}

		attributes = append(attributes, attrs)
	}

	return attributes, nil
}

// keyIdentity composes the (pk, sk) pair that identifies one item. The
// separator cannot appear in partition values, so identities never collide.
func keyIdentity(key Key) (string, error) {
	sk, err := composeSortKeyStrict(key.SortParts)
	if err != nil {
		return "", err
	}

	return key.Partition + "\x00" + sk, nil
}

func keyAttributes(key Key) (map[string]dynamodbtypes.AttributeValue, error) {
	if key.Partition == "" {
		return nil, errors.New("key partition cannot be empty")
	}

	sk, err := composeSortKeyStrict(key.SortParts)
	if err != nil {
		return nil, err
	}

	return map[string]dynamodbtypes.AttributeValue{
		PartitionKey: &dynamodbtypes.AttributeValueMemberS{Value: key.Partition},
		SortKey:      &dynamodbtypes.AttributeValueMemberS{Value: sk},
	}, nil
}

func wrapTransactError(tableName string, err error) error {
	var canceled *dynamodbtypes.TransactionCanceledException
	if errors.As(err, &canceled) {
		for _, reason := range canceled.CancellationReasons {
			if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
				return fmt.Errorf("transaction on DynamoDB table %s: %w", tableName, ErrConditionFailed)
			}
		}
	}

	var conditionFailed *dynamodbtypes.ConditionalCheckFailedException
	if errors.As(err, &conditionFailed) {
		return fmt.Errorf("write to DynamoDB table %s: %w", tableName, ErrConditionFailed)
	}

	return fmt.Errorf("failed to write transaction to DynamoDB table %s: %w", tableName, err)
}

func verifySecondaryIndex(table *dynamodbtypes.TableDescription, indexName, partitionKey, sortKey string, nonKeyAttributes ...string) error {
	for _, index := range table.GlobalSecondaryIndexes {
		if aws.ToString(index.IndexName) != indexName {
			continue
		}

		if aws.ToString(index.KeySchema[0].AttributeName) != partitionKey {
			return fmt.Errorf("global secondary index %s has partition key %s, expected %s", indexName, aws.ToString(index.KeySchema[0].AttributeName), partitionKey)
		}

		if len(index.KeySchema) != 2 {
			return fmt.Errorf("global secondary index %s has a simple primary key, expected a composite primary key", indexName)
		}

		if aws.ToString(index.KeySchema[1].AttributeName) != sortKey {
			return fmt.Errorf("global secondary index %s has sort key %s, expected %s", indexName, aws.ToString(index.KeySchema[1].AttributeName), sortKey)
		}

		if index.IndexStatus != dynamodbtypes.IndexStatusActive {
			return fmt.Errorf("global secondary index %s is not active (status: %s)", indexName, index.IndexStatus)
		}

		if index.Projection.ProjectionType != dynamodbtypes.ProjectionTypeInclude {
			return fmt.Errorf("global secondary index %s has projection type %s, expected %s", indexName, index.Projection.ProjectionType, dynamodbtypes.ProjectionTypeInclude)
		}

		for _, attr := range nonKeyAttributes {
			if !slices.Contains(index.Projection.NonKeyAttributes, attr) {
				return fmt.Errorf("global secondary index %s is missing non-key attribute %s", indexName, attr)
			}
		}

		return nil
	}

	return fmt.Errorf("global secondary index %s not found", indexName)
}

// getStringValue extracts the string value from a DynamoDB AttributeValue.
// It returns an empty string if the AttributeValue is not of type AttributeValueMemberS.
func getStringValue(attr dynamodbtypes.AttributeValue) string {
	if attrValue, ok := attr.(*dynamodbtypes.AttributeValueMemberS); ok {
		return attrValue.Value
	}

	return ""
}
