// Copyright 2024 The agentsched Authors
// Licensed under the GNU Lesser General Public License v3.0 (see LICENSE).

package tasks

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/VictoriaMetrics/fastcache"

	"github.com/agentsched/core/cache"
	"github.com/agentsched/core/interval"
	"github.com/agentsched/core/log"
	"github.com/agentsched/core/metrics"
	"github.com/agentsched/core/params"
)

var logger = log.NewModuleLogger(log.Tasks)

var (
	tasksCreatedCounter = metrics.NewRegisteredCounter("tasks/created")
	tasksRemovedCounter = metrics.NewRegisteredCounter("tasks/removed")
)

// DefaultFrom and DefaultLimit are the §6 pagination defaults shared by
// every paginated query in the external interface.
const (
	DefaultFrom  = 0
	DefaultLimit = 100
)

// timestampGuard is the "+6s" guard §4.2's current_task gives time slots,
// to absorb one block's worth of clock skew against block-based tasks.
const timestampGuard = 6 * time.Second

type slotRef struct {
	kind interval.SlotKind
	id   uint64
}

// Store is the primary task index: tasks_by_hash plus the by_owner
// secondary index plus the three disjoint slot structures of §4.2.
type Store struct {
	chainID string

	tasksByHash map[string]*Task
	byOwner     map[string]map[string]struct{}

	blockSlots    map[uint64][]string
	timeSlots     map[uint64][]string
	eventedLookup map[uint64][]string

	// taskSlot records, for every indexed task, which bucket currently
	// holds it, so RemoveTask/Reschedule don't need to scan every slot —
	// only the one bucket the task is actually in (§4.2: "scanning is
	// acceptable; lists are short per slot" refers to within-bucket
	// removal, not a full-index scan).
	taskSlot map[string]slotRef

	lastTaskCreationTimestamp time.Time

	hotCache cache.Cache    // LRU purged on every mutation; the slot scans neither read nor fill it
	fc       *fastcache.Cache // serialized Task snapshot for the Task(hash) read path
}

// New builds an empty Store.
func New(chainID string) *Store {
	hot, err := cache.New(cache.LRUConfig{Size: 256})
	if err != nil {
		logger.Crit("failed to build task store cache", "err", err)
	}
	return &Store{
		chainID:       chainID,
		tasksByHash:   make(map[string]*Task),
		byOwner:       make(map[string]map[string]struct{}),
		blockSlots:    make(map[uint64][]string),
		timeSlots:     make(map[uint64][]string),
		eventedLookup: make(map[uint64][]string),
		taskSlot:      make(map[string]slotRef),
		hotCache:      hot,
		fc:            fastcache.New(4 * 1024 * 1024),
	}
}

// CreateTask implements the §4.2 create_task contract's structural half
// (slot/evented indexing); gas/balance validation happens in balance
// before the caller builds task.AmountForOneTask and calls this.
func (s *Store) CreateTask(task *Task, env interval.Env, granularity time.Duration, now time.Time) error {
	if _, exists := s.tasksByHash[task.Hash]; exists {
		return params.New(params.TaskExists, "task hash already exists")
	}

	for _, t := range task.Transforms {
		if t.ActionIdx < 0 || t.ActionIdx >= len(task.Actions) {
			return params.Newf(params.InvalidTransform, "action_idx %d out of range", t.ActionIdx)
		}
		if t.QueryIdx < 0 || t.QueryIdx >= len(task.Queries) {
			return params.Newf(params.InvalidTransform, "query_idx %d out of range", t.QueryIdx)
		}
	}

	slotID, kind := interval.Next(env, task.Schedule, task.Boundary, granularity)
	if slotID == 0 {
		return params.New(params.InvalidBoundary, "next occurrence is terminal at creation")
	}

	if task.Evented {
		s.eventedLookup[slotID] = append(s.eventedLookup[slotID], task.Hash)
		s.taskSlot[task.Hash] = slotRef{kind: kind, id: slotID}
	} else {
		s.insertSlot(kind, slotID, task.Hash)
		s.taskSlot[task.Hash] = slotRef{kind: kind, id: slotID}
	}

	s.tasksByHash[task.Hash] = task
	if s.byOwner[task.Owner] == nil {
		s.byOwner[task.Owner] = make(map[string]struct{})
	}
	s.byOwner[task.Owner][task.Hash] = struct{}{}

	s.lastTaskCreationTimestamp = now
	s.invalidate(task.Hash)
	tasksCreatedCounter.Inc(1)
	return nil
}

// RemoveTask implements §4.2 remove_task: only the owner may remove; the
// hash is dropped from tasks_by_hash, by_owner, and whichever slot/lookup
// list holds it. Returns the task so the caller (balance) can refund the
// residual balance.
func (s *Store) RemoveTask(hash, requester string) (*Task, error) {
	task, ok := s.tasksByHash[hash]
	if !ok {
		return nil, params.New(params.TaskNotFound, "no such task")
	}
	if task.Owner != requester {
		return nil, params.New(params.Unauthorized, "only the owner may remove a task")
	}
	s.removeIndexed(task)
	tasksRemovedCounter.Inc(1)
	return task, nil
}

// Reschedule implements §4.2 reschedule: invoked only by the execution
// driver after an execution completes, on success or on a failure of a
// task without stop_on_fail. Computes next; removes the task on
// a terminal result or Once; otherwise re-indexes it (evented tasks only
// move within evented_tasks_lookup, never into a slot bucket).
func (s *Store) Reschedule(hash string, env interval.Env, granularity time.Duration) (removed bool, task *Task, err error) {
	task, ok := s.tasksByHash[hash]
	if !ok {
		return false, nil, params.New(params.TaskNotFound, "no such task")
	}

	// Pop the just-executed hash from its current bucket first.
	s.popCurrent(task)

	if task.Schedule.Kind == interval.Once {
		s.removeIndexed(task)
		return true, task, nil
	}

	slotID, kind := interval.Next(env, task.Schedule, task.Boundary, granularity)
	if slotID == 0 {
		s.removeIndexed(task)
		return true, task, nil
	}

	if task.Evented {
		s.eventedLookup[slotID] = append(s.eventedLookup[slotID], task.Hash)
		s.taskSlot[task.Hash] = slotRef{kind: kind, id: slotID}
	} else {
		s.insertSlot(kind, slotID, task.Hash)
		s.taskSlot[task.Hash] = slotRef{kind: kind, id: slotID}
	}
	s.invalidate(task.Hash)
	return false, task, nil
}

// popCurrent removes task.Hash by value from the bucket recorded in
// taskSlot. The LIFO order within a slot (§4.2 "within one slot, task
// hashes are popped from the end of the list") is applied when
// CurrentTask picks the last hash of the bucket; this removal does not
// depend on the hash's position.
func (s *Store) popCurrent(task *Task) {
	ref, ok := s.taskSlot[task.Hash]
	if !ok {
		return
	}
	if task.Evented {
		removeByValue(s.eventedLookup, ref.id, task.Hash)
	} else {
		bucket := s.bucketFor(ref.kind)
		removeByValue(bucket, ref.id, task.Hash)
	}
	delete(s.taskSlot, task.Hash)
}

func (s *Store) removeIndexed(task *Task) {
	s.popCurrent(task)
	delete(s.tasksByHash, task.Hash)
	if owned := s.byOwner[task.Owner]; owned != nil {
		delete(owned, task.Hash)
		if len(owned) == 0 {
			delete(s.byOwner, task.Owner)
		}
	}
	s.invalidate(task.Hash)
}

func (s *Store) insertSlot(kind interval.SlotKind, slotID uint64, hash string) {
	bucket := s.bucketFor(kind)
	bucket[slotID] = append(bucket[slotID], hash)
}

func (s *Store) bucketFor(kind interval.SlotKind) map[uint64][]string {
	if kind == interval.BlockSlot {
		return s.blockSlots
	}
	return s.timeSlots
}

func removeByValue(m map[uint64][]string, key uint64, hash string) {
	list := m[key]
	for i, h := range list {
		if h == hash {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(m, key)
	} else {
		m[key] = list
	}
}

func (s *Store) invalidate(hash string) {
	s.hotCache.Purge()
	s.fc.Del([]byte(hash))
}

// CurrentTask implements §4.2 current_task: the earliest due task, block
// slots before time slots. It only peeks — the execution driver consumes
// the returned hash via Reschedule once the run completes, or via
// RemoveTask when the task is removed.
func (s *Store) CurrentTask(env interval.Env) (*Task, interval.SlotKind, bool) {
	if hash, ok := peekEarliest(s.blockSlots, env.Height+1); ok {
		return s.tasksByHash[hash], interval.BlockSlot, true
	}
	guardTs := uint64(env.Timestamp.Add(timestampGuard).UnixNano())
	if hash, ok := peekEarliest(s.timeSlots, guardTs); ok {
		return s.tasksByHash[hash], interval.TimeSlot, true
	}
	return nil, interval.BlockSlot, false
}

// CurrentBucketCounts returns how many ready (non-evented) tasks sit in
// the earliest due block bucket and the earliest due time bucket, for the
// distributor's per-round quota math (§4.3 get_available_tasks operates
// over "the number of ready tasks in the current block & cron buckets").
func (s *Store) CurrentBucketCounts(env interval.Env) (blockReady, cronReady int) {
	if key, ok := earliestKey(s.blockSlots, env.Height+1); ok {
		blockReady = len(s.blockSlots[key])
	}
	guardTs := uint64(env.Timestamp.Add(timestampGuard).UnixNano())
	if key, ok := earliestKey(s.timeSlots, guardTs); ok {
		cronReady = len(s.timeSlots[key])
	}
	return blockReady, cronReady
}

func earliestKey(m map[uint64][]string, maxKey uint64) (uint64, bool) {
	var keys []uint64
	for k, v := range m {
		if k <= maxKey && len(v) > 0 {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return 0, false
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys[0], true
}

func peekEarliest(m map[uint64][]string, maxKey uint64) (string, bool) {
	key, ok := earliestKey(m, maxKey)
	if !ok {
		return "", false
	}
	bucket := m[key]
	return bucket[len(bucket)-1], true
}

// CurrentTaskInfo returns the count of all indexed tasks plus the
// timestamp of the most recent creation (§6 current_task_info).
func (s *Store) CurrentTaskInfo() (total int, lastCreatedTaskTs time.Time) {
	return len(s.tasksByHash), s.lastTaskCreationTimestamp
}

// TasksTotal is the §6 tasks_total query.
func (s *Store) TasksTotal() int { return len(s.tasksByHash) }

// Task looks up a single task by hash (§6 task(hash)), consulting the
// fastcache snapshot first.
func (s *Store) Task(hash string) (*Task, bool) {
	if raw, ok := s.fc.HasGet(nil, []byte(hash)); ok {
		var t Task
		if err := json.Unmarshal(raw, &t); err == nil {
			return &t, true
		}
	}
	t, ok := s.tasksByHash[hash]
	if ok {
		if raw, err := json.Marshal(t); err == nil {
			s.fc.Set([]byte(hash), raw)
		}
	}
	return t, ok
}

// Tasks implements the paginated §6 tasks{from, limit} query; iteration
// order is ascending by hash for determinism across calls on the same state.
func (s *Store) Tasks(from, limit int) []*Task {
	return paginate(s.sortedHashes(), from, limit, s.tasksByHash)
}

// TasksByOwner implements §6 tasks_by_owner.
func (s *Store) TasksByOwner(owner string, from, limit int) []*Task {
	owned := s.byOwner[owner]
	hashes := make([]string, 0, len(owned))
	for h := range owned {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)
	return paginate(hashes, from, limit, s.tasksByHash)
}

func (s *Store) sortedHashes() []string {
	hashes := make([]string, 0, len(s.tasksByHash))
	for h := range s.tasksByHash {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)
	return hashes
}

func paginate(hashes []string, from, limit int, byHash map[string]*Task) []*Task {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if from < 0 {
		from = 0
	}
	if from >= len(hashes) {
		return nil
	}
	end := from + limit
	if end > len(hashes) {
		end = len(hashes)
	}
	out := make([]*Task, 0, end-from)
	for _, h := range hashes[from:end] {
		out = append(out, byHash[h])
	}
	return out
}

// EventedIDs implements §6 evented_ids: the sorted set of next-check keys
// currently populated in evented_tasks_lookup.
func (s *Store) EventedIDs(from, limit int) []uint64 {
	keys := make([]uint64, 0, len(s.eventedLookup))
	for k := range s.eventedLookup {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	if limit <= 0 {
		limit = DefaultLimit
	}
	if from < 0 || from >= len(keys) {
		return nil
	}
	end := from + limit
	if end > len(keys) {
		end = len(keys)
	}
	return keys[from:end]
}

// EventedHashes implements §6 evented_hashes{id?}: hashes at a given
// next-check key, or every evented hash when id is nil.
func (s *Store) EventedHashes(id *uint64) []string {
	if id != nil {
		out := make([]string, len(s.eventedLookup[*id]))
		copy(out, s.eventedLookup[*id])
		return out
	}
	var all []string
	for _, hashes := range s.eventedLookup {
		all = append(all, hashes...)
	}
	sort.Strings(all)
	return all
}

// EventedTasks implements §6 evented_tasks{start?, from, limit}.
func (s *Store) EventedTasks(start *uint64, from, limit int) []*Task {
	var hashes []string
	for k, hs := range s.eventedLookup {
		if start != nil && k < *start {
			continue
		}
		hashes = append(hashes, hs...)
	}
	sort.Strings(hashes)
	return paginate(hashes, from, limit, s.tasksByHash)
}

// SlotHashes implements §6 slot_hashes{slot?}: the hashes at a given slot
// id (checked in block_slots then time_slots), or every scheduled hash
// across both slot kinds when slot is nil.
func (s *Store) SlotHashes(slot *uint64) []string {
	if slot != nil {
		if hs, ok := s.blockSlots[*slot]; ok {
			out := make([]string, len(hs))
			copy(out, hs)
			return out
		}
		if hs, ok := s.timeSlots[*slot]; ok {
			out := make([]string, len(hs))
			copy(out, hs)
			return out
		}
		return nil
	}
	var all []string
	for _, hs := range s.blockSlots {
		all = append(all, hs...)
	}
	for _, hs := range s.timeSlots {
		all = append(all, hs...)
	}
	sort.Strings(all)
	return all
}

// SlotIDs implements §6 slot_ids{from, limit}: the ascending, deduplicated
// union of block and time slot keys currently populated.
func (s *Store) SlotIDs(from, limit int) []uint64 {
	seen := make(map[uint64]struct{})
	for k := range s.blockSlots {
		seen[k] = struct{}{}
	}
	for k := range s.timeSlots {
		seen[k] = struct{}{}
	}
	keys := make([]uint64, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	if limit <= 0 {
		limit = DefaultLimit
	}
	if from < 0 || from >= len(keys) {
		return nil
	}
	end := from + limit
	if end > len(keys) {
		end = len(keys)
	}
	return keys[from:end]
}

// SlotTasksTotal implements §6 slot_tasks_total{offset?}: the count of
// scheduled (non-evented) tasks at or after the given block/time offset.
func (s *Store) SlotTasksTotal(offset *uint64) int {
	total := 0
	for k, hs := range s.blockSlots {
		if offset != nil && k < *offset {
			continue
		}
		total += len(hs)
	}
	for k, hs := range s.timeSlots {
		if offset != nil && k < *offset {
			continue
		}
		total += len(hs)
	}
	return total
}
