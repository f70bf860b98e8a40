package syncer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"chainmirror/internal/decoder"
	"chainmirror/internal/models"
	"chainmirror/internal/storage"
)

var (
	goodTopic = common.HexToHash("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	badTopic  = common.HexToHash("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

// fakeSource serves logs from a fixed set, filtered by the requested range.
type fakeSource struct {
	head     uint64
	logs     []types.Log
	headErr  error
	fetchErr error
	fetches  [][2]uint64
}

func (f *fakeSource) HeadBlock(ctx context.Context) (uint64, error) {
	if f.headErr != nil {
		return 0, f.headErr
	}
	return f.head, nil
}

func (f *fakeSource) FetchLogs(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error) {
	f.fetches = append(f.fetches, [2]uint64{fromBlock, toBlock})
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}

	var out []types.Log
	for _, lg := range f.logs {
		if lg.BlockNumber >= fromBlock && lg.BlockNumber <= toBlock {
			out = append(out, lg)
		}
	}
	return out, nil
}

// fakeDecoder decodes every log with the good topic and fails on the rest.
type fakeDecoder struct{}

func (fakeDecoder) Decode(lg types.Log) (*decoder.DecodedEvent, error) {
	if len(lg.Topics) == 0 || lg.Topics[0] != goodTopic {
		return nil, errors.New("no matching event for topic")
	}
	return &decoder.DecodedEvent{
		Name:      "DataRegistered",
		Signature: "DataRegistered(bytes32,address,string,uint256)",
		Topic:     lg.Topics[0].Hex(),
		Args:      map[string]interface{}{"recordId": "0xaa"},
	}, nil
}

// fakeEvents is an in-memory idempotent event store.
type fakeEvents struct {
	byID     map[string]models.BlockchainEvent
	storeErr error
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{byID: make(map[string]models.BlockchainEvent)}
}

func (f *fakeEvents) Store(ctx context.Context, event *models.BlockchainEvent) (bool, error) {
	if f.storeErr != nil {
		return false, f.storeErr
	}
	event.EnsureID()
	if _, exists := f.byID[event.ID]; exists {
		return false, nil
	}
	f.byID[event.ID] = *event
	return true, nil
}

func (f *fakeEvents) ByEventName(ctx context.Context, name string, limit int) ([]models.BlockchainEvent, error) {
	return nil, nil
}
func (f *fakeEvents) ByBlockRange(ctx context.Context, from, to uint64, limit int) ([]models.BlockchainEvent, error) {
	return nil, nil
}
func (f *fakeEvents) ByTransactionHash(ctx context.Context, hash string) ([]models.BlockchainEvent, error) {
	return nil, nil
}
func (f *fakeEvents) Latest(ctx context.Context, limit int) ([]models.BlockchainEvent, error) {
	return nil, nil
}
func (f *fakeEvents) LatestWithParsedArgs(ctx context.Context, limit int) ([]models.BlockchainEvent, error) {
	return nil, nil
}

// fakeState keeps the checkpoint in memory, applying the same merge rules
// as the real store.
type fakeState struct {
	cp models.SyncCheckpoint
}

func newFakeState() *fakeState {
	return &fakeState{cp: *models.DefaultCheckpoint()}
}

func (f *fakeState) GetState(ctx context.Context) (*models.SyncCheckpoint, error) {
	cp := f.cp
	return &cp, nil
}

func (f *fakeState) UpdateState(ctx context.Context, update models.CheckpointUpdate) (*models.SyncCheckpoint, error) {
	f.cp = update.Apply(f.cp)
	cp := f.cp
	return &cp, nil
}

func (f *fakeState) GetLastProcessedBlockNumber(ctx context.Context) uint64 {
	return f.cp.LastProcessedBlock
}

type fakeLease struct {
	held bool
}

func (f *fakeLease) Acquire(ctx context.Context) (bool, error) { return !f.held, nil }
func (f *fakeLease) Release(ctx context.Context) error         { return nil }

func makeLog(block uint64, tx string, index uint, topic common.Hash) types.Log {
	return types.Log{
		Address:     common.HexToAddress("0x2222222222222222222222222222222222222222"),
		Topics:      []common.Hash{topic},
		Data:        []byte{0x01},
		BlockNumber: block,
		BlockHash:   common.HexToHash(fmt.Sprintf("0x%064x", block)),
		TxHash:      common.HexToHash(tx),
		Index:       index,
	}
}

func newTestSyncer(source *fakeSource, events *fakeEvents, state *fakeState, lease *fakeLease) *Syncer {
	return New(source, fakeDecoder{}, events, state, lease, 100, time.Millisecond)
}

func TestRunCycle_CatchUpOverTwoCycles(t *testing.T) {
	source := &fakeSource{
		head: 105,
		logs: []types.Log{
			makeLog(5, "0x01", 0, goodTopic),
			makeLog(102, "0x02", 0, goodTopic),
		},
	}
	events := newFakeEvents()
	state := newFakeState()
	s := newTestSyncer(source, events, state, &fakeLease{})

	// Cycle 1: blocks 1-100, still behind the head
	cp, err := s.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("Cycle 1 failed: %v", err)
	}
	if cp.LastProcessedBlock != 100 {
		t.Errorf("Cycle 1: expected checkpoint 100, got %d", cp.LastProcessedBlock)
	}
	if cp.SyncStatus != models.StatusSyncing {
		t.Errorf("Cycle 1: expected status SYNCING, got %s", cp.SyncStatus)
	}
	if cp.TotalEventsProcessed != 1 {
		t.Errorf("Cycle 1: expected 1 event processed, got %d", cp.TotalEventsProcessed)
	}
	if got := source.fetches[0]; got != [2]uint64{1, 100} {
		t.Errorf("Cycle 1: expected fetch [1, 100], got %v", got)
	}

	// Cycle 2: blocks 101-105, caught up
	cp, err = s.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("Cycle 2 failed: %v", err)
	}
	if cp.LastProcessedBlock != 105 {
		t.Errorf("Cycle 2: expected checkpoint 105, got %d", cp.LastProcessedBlock)
	}
	if cp.SyncStatus != models.StatusSynced {
		t.Errorf("Cycle 2: expected status SYNCED, got %s", cp.SyncStatus)
	}
	if cp.TotalEventsProcessed != 2 {
		t.Errorf("Cycle 2: expected 2 events processed, got %d", cp.TotalEventsProcessed)
	}
	if got := source.fetches[1]; got != [2]uint64{101, 105} {
		t.Errorf("Cycle 2: expected fetch [101, 105], got %v", got)
	}
	if cp.LastSyncedEventName != "DataRegistered" {
		t.Errorf("Expected lastSyncedEventName from last stored event, got %q", cp.LastSyncedEventName)
	}
	if cp.LastSyncedTransactionHash != common.HexToHash("0x02").Hex() {
		t.Errorf("Expected lastSyncedTransactionHash of last event, got %q", cp.LastSyncedTransactionHash)
	}
}

func TestRunCycle_EmptyRangeAdvancesCheckpoint(t *testing.T) {
	source := &fakeSource{head: 60}
	events := newFakeEvents()
	state := newFakeState()
	state.cp.LastProcessedBlock = 49
	s := newTestSyncer(source, events, state, &fakeLease{})

	cp, err := s.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("Cycle failed: %v", err)
	}

	if cp.LastProcessedBlock != 60 {
		t.Errorf("Expected checkpoint 60, got %d", cp.LastProcessedBlock)
	}
	if cp.SyncStatus != models.StatusSynced {
		t.Errorf("Expected status SYNCED, got %s", cp.SyncStatus)
	}
	if cp.TotalEventsProcessed != 0 {
		t.Errorf("Expected total events unchanged at 0, got %d", cp.TotalEventsProcessed)
	}
}

func TestRunCycle_FetchFailureLeavesCheckpoint(t *testing.T) {
	source := &fakeSource{
		head:     50,
		fetchErr: errors.New("operation failed after 3 attempts: connection refused"),
	}
	events := newFakeEvents()
	state := newFakeState()
	state.cp.LastProcessedBlock = 10
	s := newTestSyncer(source, events, state, &fakeLease{})

	_, err := s.RunCycle(context.Background())
	if err == nil {
		t.Fatal("Expected fatal fetch error to propagate")
	}

	if state.cp.SyncStatus != models.StatusError {
		t.Errorf("Expected status ERROR, got %s", state.cp.SyncStatus)
	}
	if state.cp.ErrorMessage == "" {
		t.Error("Expected error message to be recorded")
	}
	if state.cp.LastProcessedBlock != 10 {
		t.Errorf("Expected checkpoint unchanged at 10, got %d", state.cp.LastProcessedBlock)
	}
}

func TestRunCycle_ResumesFromCommittedCheckpoint(t *testing.T) {
	source := &fakeSource{head: 50, fetchErr: errors.New("node unavailable")}
	events := newFakeEvents()
	state := newFakeState()
	state.cp.LastProcessedBlock = 10
	s := newTestSyncer(source, events, state, &fakeLease{})

	if _, err := s.RunCycle(context.Background()); err == nil {
		t.Fatal("Expected first cycle to fail")
	}

	// Next cycle starts again from K+1
	source.fetchErr = nil
	if _, err := s.RunCycle(context.Background()); err != nil {
		t.Fatalf("Second cycle failed: %v", err)
	}
	if got := source.fetches[1]; got != [2]uint64{11, 50} {
		t.Errorf("Expected resume fetch [11, 50], got %v", got)
	}
}

func TestRunCycle_DecodeFailureIsIsolated(t *testing.T) {
	source := &fakeSource{
		head: 3,
		logs: []types.Log{
			makeLog(1, "0x01", 0, goodTopic),
			makeLog(2, "0x02", 0, badTopic),
			makeLog(3, "0x03", 0, goodTopic),
		},
	}
	events := newFakeEvents()
	state := newFakeState()
	s := newTestSyncer(source, events, state, &fakeLease{})

	cp, err := s.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("Cycle failed: %v", err)
	}

	if cp.TotalEventsProcessed != 2 {
		t.Errorf("Expected 2 stored events around the bad log, got %d", cp.TotalEventsProcessed)
	}
	if len(events.byID) != 2 {
		t.Errorf("Expected 2 records in store, got %d", len(events.byID))
	}
	if cp.LastProcessedBlock != 3 {
		t.Errorf("Expected checkpoint 3, got %d", cp.LastProcessedBlock)
	}
	if cp.SyncStatus != models.StatusSynced {
		t.Errorf("Expected status SYNCED, got %s", cp.SyncStatus)
	}
}

func TestRunCycle_RedundantDeliveryIsIdempotent(t *testing.T) {
	source := &fakeSource{
		head: 5,
		logs: []types.Log{makeLog(2, "0x01", 0, goodTopic)},
	}
	events := newFakeEvents()
	state := newFakeState()
	s := newTestSyncer(source, events, state, &fakeLease{})

	if _, err := s.RunCycle(context.Background()); err != nil {
		t.Fatalf("First cycle failed: %v", err)
	}

	// Simulate a crash after fetch but before commit: rewind the
	// checkpoint so the same range is re-processed.
	state.cp.LastProcessedBlock = 0

	cp, err := s.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("Replay cycle failed: %v", err)
	}

	if len(events.byID) != 1 {
		t.Errorf("Expected a single record after redundant delivery, got %d", len(events.byID))
	}
	if cp.TotalEventsProcessed != 1 {
		t.Errorf("Expected total of 1 after replay, got %d", cp.TotalEventsProcessed)
	}
}

func TestRunCycle_StoreFailureIsFatal(t *testing.T) {
	source := &fakeSource{
		head: 5,
		logs: []types.Log{makeLog(2, "0x01", 0, goodTopic)},
	}
	events := newFakeEvents()
	events.storeErr = errors.New("relational write failed: connection lost")
	state := newFakeState()
	state.cp.LastProcessedBlock = 1
	s := newTestSyncer(source, events, state, &fakeLease{})

	if _, err := s.RunCycle(context.Background()); err == nil {
		t.Fatal("Expected storage failure to propagate")
	}

	if state.cp.SyncStatus != models.StatusError {
		t.Errorf("Expected status ERROR, got %s", state.cp.SyncStatus)
	}
	if state.cp.LastProcessedBlock != 1 {
		t.Errorf("Expected checkpoint unchanged at 1, got %d", state.cp.LastProcessedBlock)
	}
}

func TestRunCycle_NoOpWhenAheadOfHead(t *testing.T) {
	source := &fakeSource{head: 90}
	events := newFakeEvents()
	state := newFakeState()
	state.cp.LastProcessedBlock = 100
	s := newTestSyncer(source, events, state, &fakeLease{})

	cp, err := s.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("Cycle failed: %v", err)
	}

	// The checkpoint never moves backwards, even when the reported head
	// is momentarily behind it.
	if cp.LastProcessedBlock != 100 {
		t.Errorf("Expected checkpoint to stay at 100, got %d", cp.LastProcessedBlock)
	}
	if cp.SyncStatus != models.StatusSynced {
		t.Errorf("Expected status SYNCED, got %s", cp.SyncStatus)
	}
	if len(source.fetches) != 0 {
		t.Errorf("Expected no fetch for a no-op cycle, got %d", len(source.fetches))
	}
}

func TestRunCycle_LeaseHeld(t *testing.T) {
	source := &fakeSource{head: 50}
	events := newFakeEvents()
	state := newFakeState()
	state.cp.LastProcessedBlock = 10
	before := state.cp
	s := newTestSyncer(source, events, state, &fakeLease{held: true})

	_, err := s.RunCycle(context.Background())
	if !errors.Is(err, storage.ErrLeaseHeld) {
		t.Fatalf("Expected ErrLeaseHeld, got %v", err)
	}

	if state.cp.LastProcessedBlock != before.LastProcessedBlock || state.cp.Version != before.Version {
		t.Error("Expected checkpoint untouched while lease is held")
	}
}

func TestRunCycle_CheckpointIsMonotonic(t *testing.T) {
	source := &fakeSource{
		head: 105,
		logs: []types.Log{makeLog(5, "0x01", 0, goodTopic)},
	}
	events := newFakeEvents()
	state := newFakeState()
	s := newTestSyncer(source, events, state, &fakeLease{})

	var previous uint64
	for i := 0; i < 4; i++ {
		cp, err := s.RunCycle(context.Background())
		if err != nil {
			t.Fatalf("Cycle %d failed: %v", i+1, err)
		}
		if cp.LastProcessedBlock < previous {
			t.Fatalf("Checkpoint decreased from %d to %d", previous, cp.LastProcessedBlock)
		}
		previous = cp.LastProcessedBlock
	}
}

func TestResetSyncState(t *testing.T) {
	source := &fakeSource{head: 50}
	events := newFakeEvents()
	state := newFakeState()
	state.cp.LastProcessedBlock = 10
	state.cp.SyncStatus = models.StatusError
	state.cp.ErrorMessage = "node unavailable"
	s := newTestSyncer(source, events, state, &fakeLease{})

	cp, err := s.ResetSyncState(context.Background(), 500)
	if err != nil {
		t.Fatalf("ResetSyncState failed: %v", err)
	}

	if cp.LastProcessedBlock != 500 {
		t.Errorf("Expected checkpoint 500, got %d", cp.LastProcessedBlock)
	}
	if cp.SyncStatus != models.StatusSynced {
		t.Errorf("Expected status SYNCED, got %s", cp.SyncStatus)
	}
	if cp.ErrorMessage != "" {
		t.Errorf("Expected cleared error message, got %q", cp.ErrorMessage)
	}
}

func TestPerformFullSync(t *testing.T) {
	source := &fakeSource{
		head: 105,
		logs: []types.Log{
			makeLog(5, "0x01", 0, goodTopic),
			makeLog(102, "0x02", 0, goodTopic),
		},
	}
	events := newFakeEvents()
	state := newFakeState()
	state.cp.LastProcessedBlock = 999 // seeded over by the full sync
	s := newTestSyncer(source, events, state, &fakeLease{})

	if err := s.PerformFullSync(context.Background(), 1); err != nil {
		t.Fatalf("PerformFullSync failed: %v", err)
	}

	if state.cp.LastProcessedBlock != 105 {
		t.Errorf("Expected final checkpoint 105, got %d", state.cp.LastProcessedBlock)
	}
	if state.cp.SyncStatus != models.StatusSynced {
		t.Errorf("Expected final status SYNCED, got %s", state.cp.SyncStatus)
	}
	if state.cp.TotalEventsProcessed != 2 {
		t.Errorf("Expected 2 events processed, got %d", state.cp.TotalEventsProcessed)
	}
	if len(source.fetches) != 2 {
		t.Errorf("Expected 2 bounded fetches, got %d", len(source.fetches))
	}
}

func TestPerformFullSync_HaltsOnError(t *testing.T) {
	source := &fakeSource{head: 105, fetchErr: errors.New("node unavailable")}
	events := newFakeEvents()
	state := newFakeState()
	s := newTestSyncer(source, events, state, &fakeLease{})

	if err := s.PerformFullSync(context.Background(), 1); err == nil {
		t.Fatal("Expected full sync to halt with an error")
	}

	if state.cp.SyncStatus != models.StatusError {
		t.Errorf("Expected status ERROR, got %s", state.cp.SyncStatus)
	}
	if len(source.fetches) != 1 {
		t.Errorf("Expected the loop to stop after the failing cycle, got %d fetches", len(source.fetches))
	}
}
