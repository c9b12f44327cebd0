// Package redis stores a rule corpus in Redis: one JSON document per record,
// sorted sets as per-table indexes and sets as per-parent child indexes.
package redis

import (
	"cmp"
	"context"
	"encoding/json"
	"slices"
	"strconv"
	"time"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/cockroachdb/errors"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by the store.
const DefaultPrefix = "strata:"

// Store implements ports.ReadWriteStore and ports.Watchable using Redis.
type Store struct {
	client *backend.Client
	prefix string
	now    func() time.Time
}

type Option func(*Store)

// WithPrefix sets the key prefix for the corpus.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithClock sets the time source used to stamp rules.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: DefaultPrefix,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) seqKey(table string) string   { return s.prefix + "seq:" + table }
func (s *Store) indexKey(table string) string { return s.prefix + "index:" + table }
func (s *Store) changesChannel() string       { return s.prefix + "changes" }

func (s *Store) docKey(table string, id int64) string {
	return s.prefix + table + ":" + strconv.FormatInt(id, 10)
}

func (s *Store) nameKey(kind domain.Kind, name string) string {
	return s.prefix + "name:" + string(kind) + ":" + name
}

func (s *Store) childrenKey(rk domain.RelationKind, parentID int64) string {
	return s.prefix + "children:" + string(rk) + ":" + strconv.FormatInt(parentID, 10)
}

func ruleTable(kind domain.Kind) string { return "rule:" + string(kind) }

func relationTable(rk domain.RelationKind) string { return "relation:" + string(rk) }

const (
	versionTable = "version"
	tagTable     = "tag"
)

// bumpSeq keeps the sequence ahead of explicitly assigned ids.
var bumpSeq = backend.NewScript(`
local cur = tonumber(redis.call("GET", KEYS[1]) or "0")
if cur < tonumber(ARGV[1]) then
	redis.call("SET", KEYS[1], ARGV[1])
end
return 1
`)

func (s *Store) assignID(ctx context.Context, table string, id int64) (int64, error) {
	if id == 0 {
		next, err := s.client.Incr(ctx, s.seqKey(table)).Result()
		if err != nil {
			return 0, errors.Wrapf(err, "failed to allocate %s id", table)
		}
		return next, nil
	}
	if err := bumpSeq.Run(ctx, s.client, []string{s.seqKey(table)}, id).Err(); err != nil {
		return 0, errors.Wrapf(err, "failed to advance %s sequence", table)
	}
	return id, nil
}

func getJSON[T any](ctx context.Context, s *Store, key string) (T, bool, error) {
	var out T
	val, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return out, false, nil
		}
		return out, false, errors.Wrap(err, "failed to get from redis")
	}
	if err := json.Unmarshal(val, &out); err != nil {
		return out, false, errors.Wrapf(err, "failed to unmarshal %s", key)
	}
	return out, true, nil
}

// listJSON fetches every document of a table in id order.
func listJSON[T any](ctx context.Context, s *Store, table string) ([]T, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(table), 0, -1).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list %s index", table)
	}
	return mgetJSON[T](ctx, s, table, ids)
}

func mgetJSON[T any](ctx context.Context, s *Store, table string, ids []string) ([]T, error) {
	out := make([]T, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.prefix + table + ":" + id
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch %s documents", table)
	}
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue // index entry without document
		}
		var item T
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			return nil, errors.Wrapf(err, "failed to unmarshal %s", keys[i])
		}
		out = append(out, item)
	}
	return out, nil
}

// GetRule retrieves a rule by kind and id.
func (s *Store) GetRule(ctx context.Context, kind domain.Kind, id int64) (domain.Rule, error) {
	rule, ok, err := getJSON[domain.Rule](ctx, s, s.docKey(ruleTable(kind), id))
	if err != nil {
		return domain.Rule{}, err
	}
	if !ok {
		return domain.Rule{}, &domain.NotFoundError{Kind: kind, ID: id}
	}
	return rule, nil
}

// GetRuleByName returns the lowest-id rule carrying name.
func (s *Store) GetRuleByName(ctx context.Context, kind domain.Kind, name string) (domain.Rule, error) {
	ids, err := s.client.ZRange(ctx, s.nameKey(kind, name), 0, 0).Result()
	if err != nil {
		return domain.Rule{}, errors.Wrap(err, "failed to read name index")
	}
	if len(ids) == 0 {
		return domain.Rule{}, &domain.NotFoundError{Kind: kind, Name: name}
	}
	id, err := strconv.ParseInt(ids[0], 10, 64)
	if err != nil {
		return domain.Rule{}, errors.Wrapf(err, "corrupt name index for %q", name)
	}
	return s.GetRule(ctx, kind, id)
}

// SemanticRelationsForTask returns the task's relations in resolution order.
func (s *Store) SemanticRelationsForTask(ctx context.Context, taskID int64) ([]domain.Relation, error) {
	return s.children(ctx, domain.RelationTaskSemantic, taskID)
}

// PrimitiveRelationsForSemantic returns the semantic rule's relations in resolution order.
func (s *Store) PrimitiveRelationsForSemantic(ctx context.Context, semanticID int64) ([]domain.Relation, error) {
	return s.children(ctx, domain.RelationSemanticPrimitive, semanticID)
}

func (s *Store) children(ctx context.Context, rk domain.RelationKind, parentID int64) ([]domain.Relation, error) {
	ids, err := s.client.SMembers(ctx, s.childrenKey(rk, parentID)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read child index")
	}
	rels, err := mgetJSON[domain.Relation](ctx, s, relationTable(rk), ids)
	if err != nil || len(rels) == 0 {
		return rels, err
	}

	_, childKind := rk.Endpoints()
	childIDs := make([]string, len(rels))
	for i, rel := range rels {
		childIDs[i] = strconv.FormatInt(rel.ChildID, 10)
	}
	children, err := mgetJSON[domain.Rule](ctx, s, ruleTable(childKind), childIDs)
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(children))
	for _, c := range children {
		names[c.ID] = c.Name
	}

	slices.SortFunc(rels, func(a, b domain.Relation) int {
		return cmp.Or(
			cmp.Compare(a.OrderIndex, b.OrderIndex),
			cmp.Compare(names[a.ChildID], names[b.ChildID]),
			cmp.Compare(a.ID, b.ID),
		)
	})
	return rels, nil
}

// ListRules returns every rule of a kind ordered by id.
func (s *Store) ListRules(ctx context.Context, kind domain.Kind) ([]domain.Rule, error) {
	return listJSON[domain.Rule](ctx, s, ruleTable(kind))
}

// ListRelations returns every relation of a kind ordered by id.
func (s *Store) ListRelations(ctx context.Context, kind domain.RelationKind) ([]domain.Relation, error) {
	return listJSON[domain.Relation](ctx, s, relationTable(kind))
}

// ListVersions returns the whole version history ordered by id.
func (s *Store) ListVersions(ctx context.Context) ([]domain.RuleVersion, error) {
	return listJSON[domain.RuleVersion](ctx, s, versionTable)
}

// ListTags returns every tag ordered by id.
func (s *Store) ListTags(ctx context.Context) ([]domain.RuleTag, error) {
	return listJSON[domain.RuleTag](ctx, s, tagTable)
}

// SaveRule persists a rule and its name index entry, then announces the change.
func (s *Store) SaveRule(ctx context.Context, rule domain.Rule) (domain.Rule, error) {
	if !rule.Kind.Valid() {
		return domain.Rule{}, errors.Newf("unknown rule kind %q", rule.Kind)
	}
	table := ruleTable(rule.Kind)

	var prev domain.Rule
	var existed bool
	if rule.ID != 0 {
		var err error
		prev, existed, err = getJSON[domain.Rule](ctx, s, s.docKey(table, rule.ID))
		if err != nil {
			return domain.Rule{}, err
		}
	}

	id, err := s.assignID(ctx, table, rule.ID)
	if err != nil {
		return domain.Rule{}, err
	}
	rule.ID = id

	now := s.now()
	if existed {
		rule.CreatedAt = prev.CreatedAt
	} else if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	if rule.Version == 0 {
		rule.Version = 1
	}
	rule.UpdatedAt = now

	data, err := json.Marshal(rule)
	if err != nil {
		return domain.Rule{}, errors.Wrap(err, "failed to marshal rule")
	}

	member := strconv.FormatInt(id, 10)
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.docKey(table, id), data, 0)
	pipe.ZAdd(ctx, s.indexKey(table), backend.Z{Score: float64(id), Member: member})
	if existed && prev.Name != rule.Name {
		pipe.ZRem(ctx, s.nameKey(rule.Kind, prev.Name), member)
	}
	pipe.ZAdd(ctx, s.nameKey(rule.Kind, rule.Name), backend.Z{Score: float64(id), Member: member})
	pipe.Publish(ctx, s.changesChannel(), domain.NodeName(rule.Kind, id))
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.Rule{}, errors.Wrap(err, "failed to save rule to redis")
	}
	return rule, nil
}

// SaveRelation validates and persists a relation. Endpoint existence is not enforced.
func (s *Store) SaveRelation(ctx context.Context, rel domain.Relation) (domain.Relation, error) {
	if err := rel.Validate(); err != nil {
		return domain.Relation{}, err
	}
	rk := rel.Type()
	table := relationTable(rk)

	var prev domain.Relation
	var existed bool
	if rel.ID != 0 {
		var err error
		prev, existed, err = getJSON[domain.Relation](ctx, s, s.docKey(table, rel.ID))
		if err != nil {
			return domain.Relation{}, err
		}
	}

	id, err := s.assignID(ctx, table, rel.ID)
	if err != nil {
		return domain.Relation{}, err
	}
	rel.ID = id

	data, err := json.Marshal(rel)
	if err != nil {
		return domain.Relation{}, errors.Wrap(err, "failed to marshal relation")
	}

	member := strconv.FormatInt(id, 10)
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.docKey(table, id), data, 0)
	pipe.ZAdd(ctx, s.indexKey(table), backend.Z{Score: float64(id), Member: member})
	if existed && prev.ParentID != rel.ParentID {
		pipe.SRem(ctx, s.childrenKey(rk, prev.ParentID), member)
	}
	pipe.SAdd(ctx, s.childrenKey(rk, rel.ParentID), member)
	pipe.Publish(ctx, s.changesChannel(), rel.Parent())
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.Relation{}, errors.Wrap(err, "failed to save relation to redis")
	}
	return rel, nil
}

// SaveVersion persists a version entry.
func (s *Store) SaveVersion(ctx context.Context, v domain.RuleVersion) (domain.RuleVersion, error) {
	id, err := s.assignID(ctx, versionTable, v.ID)
	if err != nil {
		return domain.RuleVersion{}, err
	}
	v.ID = id
	if v.CreatedAt.IsZero() {
		v.CreatedAt = s.now()
	}
	return v, s.saveDoc(ctx, versionTable, id, v)
}

// SaveTag persists a rule tag.
func (s *Store) SaveTag(ctx context.Context, tag domain.RuleTag) (domain.RuleTag, error) {
	id, err := s.assignID(ctx, tagTable, tag.ID)
	if err != nil {
		return domain.RuleTag{}, err
	}
	tag.ID = id
	return tag, s.saveDoc(ctx, tagTable, id, tag)
}

func (s *Store) saveDoc(ctx context.Context, table string, id int64, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal %s", table)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.docKey(table, id), data, 0)
	pipe.ZAdd(ctx, s.indexKey(table), backend.Z{Score: float64(id), Member: strconv.FormatInt(id, 10)})
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrapf(err, "failed to save %s to redis", table)
	}
	return nil
}

// Watch subscribes to the change channel. Every rule or relation write
// publishes the "{kind}_{id}" name of the rule whose tree changed.
func (s *Store) Watch(ctx context.Context) (<-chan string, error) {
	sub := s.client.Subscribe(ctx, s.changesChannel())
	// Wait for the subscription to be confirmed so no publish is missed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, errors.Wrap(err, "failed to subscribe to changes")
	}

	out := make(chan string)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
