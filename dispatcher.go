package stagegraph

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onstage/stagegraph/media"
)

// DispatcherOperation represents one queued control operation
type DispatcherOperation struct {
	Type     OperationType
	Data     interface{}
	Response chan DispatcherResult
}

// OperationType represents the type of dispatcher operation
type OperationType string

const (
	OpAddEffect           OperationType = "add_effect"
	OpRemoveNode          OperationType = "remove_node"
	OpDisconnectNode      OperationType = "disconnect_node"
	OpAddConnection       OperationType = "add_connection"
	OpRemoveConnection    OperationType = "remove_connection"
	OpSetBypass           OperationType = "set_bypass"
	OpSetNodeState        OperationType = "set_node_state"
	OpSwitchWorkspace     OperationType = "switch_workspace"
	OpClearWorkspace      OperationType = "clear_workspace"
	OpDuplicateWorkspace  OperationType = "duplicate_workspace"
	OpResetWorkspaces     OperationType = "reset_workspaces"
	OpGetWorkspaceState   OperationType = "get_workspace_state"
	OpRestoreWorkspaces   OperationType = "restore_workspaces"
	OpPrepare             OperationType = "prepare"
	OpSuspend             OperationType = "suspend"
	OpFlush               OperationType = "flush"
)

// DispatcherResult represents the result of a dispatcher operation
type DispatcherResult struct {
	Success bool
	Data    interface{}
	Error   error
}

// Dispatcher serializes every structural mutation and workspace operation
// onto one goroutine. That goroutine is the control thread the graph's
// concurrency model assumes; nothing else mutates topology.
type Dispatcher struct {
	graph      *Graph
	workspaces *WorkspaceManager
	errors     ErrorHandler

	mu         sync.RWMutex
	isRunning  bool
	operations chan DispatcherOperation
	stopChan   chan struct{}

	// Performance tracking
	lastOperationDuration time.Duration
	maxOperationDuration  time.Duration
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(graph *Graph, workspaces *WorkspaceManager, errors ErrorHandler) *Dispatcher {
	if errors == nil {
		errors = NewDefaultErrorHandler()
	}
	return &Dispatcher{
		graph:                graph,
		workspaces:           workspaces,
		errors:               errors,
		operations:           make(chan DispatcherOperation, 100),
		stopChan:             make(chan struct{}),
		maxOperationDuration: 300 * time.Millisecond,
	}
}

// Start begins the dispatch loop.
func (d *Dispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isRunning {
		return fmt.Errorf("dispatcher is already running")
	}

	d.isRunning = true
	go d.dispatchLoop()

	return nil
}

// Stop halts the dispatcher
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.isRunning {
		return nil // Already stopped
	}

	close(d.stopChan)
	d.isRunning = false

	return nil
}

// IsRunning returns whether the dispatcher is active
func (d *Dispatcher) IsRunning() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.isRunning
}

// GetPerformanceStats returns dispatcher performance statistics
func (d *Dispatcher) GetPerformanceStats() (lastDuration, maxDuration time.Duration) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastOperationDuration, d.maxOperationDuration
}

func (d *Dispatcher) dispatchLoop() {
	for {
		select {
		case <-d.stopChan:
			return
		case op := <-d.operations:
			start := time.Now()
			result := d.executeOperation(op)
			duration := time.Since(start)

			d.mu.Lock()
			d.lastOperationDuration = duration
			if duration > d.maxOperationDuration {
				d.errors.HandleError(
					fmt.Errorf("control operation %s took %v, target is sub-300ms", op.Type, duration))
			}
			d.mu.Unlock()

			op.Response <- result
		}
	}
}

func (d *Dispatcher) executeOperation(op DispatcherOperation) DispatcherResult {
	switch op.Type {
	case OpAddEffect:
		data := op.Data.(AddEffectData)
		id, err := d.graph.AddEffect(data.TypeTag, data.X, data.Y)
		return DispatcherResult{Success: err == nil, Data: id, Error: err}

	case OpRemoveNode:
		id := op.Data.(uuid.UUID)
		err := d.graph.RemoveNode(id)
		return DispatcherResult{Success: err == nil, Error: err}

	case OpDisconnectNode:
		id := op.Data.(uuid.UUID)
		d.graph.DisconnectNode(id)
		return DispatcherResult{Success: true}

	case OpAddConnection:
		c := op.Data.(Connection)
		err := d.graph.AddConnection(c)
		return DispatcherResult{Success: err == nil, Error: err}

	case OpRemoveConnection:
		c := op.Data.(Connection)
		err := d.graph.RemoveConnection(c)
		return DispatcherResult{Success: err == nil, Error: err}

	case OpSetBypass:
		data := op.Data.(SetBypassData)
		err := d.graph.SetNodeBypassed(data.Node, data.Bypassed)
		return DispatcherResult{Success: err == nil, Error: err}

	case OpSetNodeState:
		data := op.Data.(SetNodeStateData)
		err := d.graph.SetNodeState(data.Node, data.State)
		return DispatcherResult{Success: err == nil, Error: err}

	case OpSwitchWorkspace:
		index := op.Data.(int)
		err := d.workspaces.SwitchWorkspace(index)
		return DispatcherResult{Success: err == nil, Error: err}

	case OpClearWorkspace:
		index := op.Data.(int)
		err := d.workspaces.ClearWorkspace(index)
		return DispatcherResult{Success: err == nil, Error: err}

	case OpDuplicateWorkspace:
		data := op.Data.(DuplicateWorkspaceData)
		err := d.workspaces.DuplicateWorkspace(data.Src, data.Dst)
		return DispatcherResult{Success: err == nil, Error: err}

	case OpResetWorkspaces:
		d.workspaces.ResetAll()
		return DispatcherResult{Success: true}

	case OpGetWorkspaceState:
		state, err := d.workspaces.GetState()
		return DispatcherResult{Success: err == nil, Data: state, Error: err}

	case OpRestoreWorkspaces:
		state := op.Data.(*WorkspaceState)
		err := d.workspaces.RestoreState(state)
		return DispatcherResult{Success: err == nil, Error: err}

	case OpPrepare:
		data := op.Data.(PrepareData)
		d.graph.Prepare(data.SampleRate, data.BlockSize, data.NumHWIn, data.NumHWOut, data.Player)
		return DispatcherResult{Success: true}

	case OpSuspend:
		d.graph.Suspend()
		return DispatcherResult{Success: true}

	case OpFlush:
		d.graph.FlushBuffers()
		return DispatcherResult{Success: true}

	default:
		return DispatcherResult{
			Success: false,
			Error:   fmt.Errorf("unknown operation type: %s", op.Type),
		}
	}
}

// Data structures for dispatcher operations

type AddEffectData struct {
	TypeTag string
	X, Y    float64
}

type SetBypassData struct {
	Node     uuid.UUID
	Bypassed bool
}

type SetNodeStateData struct {
	Node  uuid.UUID
	State []byte
}

type DuplicateWorkspaceData struct {
	Src int
	Dst int
}

type PrepareData struct {
	SampleRate float64
	BlockSize  int
	NumHWIn    int
	NumHWOut   int
	Player     media.Player
}

func (d *Dispatcher) submit(opType OperationType, data interface{}) DispatcherResult {
	d.mu.RLock()
	running, stop := d.isRunning, d.stopChan
	d.mu.RUnlock()
	if !running {
		return DispatcherResult{Error: fmt.Errorf("dispatcher is not running")}
	}

	response := make(chan DispatcherResult, 1)
	op := DispatcherOperation{
		Type:     opType,
		Data:     data,
		Response: response,
	}

	// Stop can race the enqueue; without the stop case a queued
	// operation would never be answered once the loop has exited.
	select {
	case d.operations <- op:
	case <-stop:
		return DispatcherResult{Error: fmt.Errorf("dispatcher is not running")}
	}
	select {
	case result := <-response:
		return result
	case <-stop:
		return DispatcherResult{Error: fmt.Errorf("dispatcher stopped before the operation completed")}
	}
}

// Public API methods that queue operations

// AddEffect creates an effect node via the dispatcher.
func (d *Dispatcher) AddEffect(typeTag string, x, y float64) (uuid.UUID, error) {
	result := d.submit(OpAddEffect, AddEffectData{TypeTag: typeTag, X: x, Y: y})
	if result.Success {
		return result.Data.(uuid.UUID), nil
	}
	return uuid.Nil, result.Error
}

// RemoveNode removes a node via the dispatcher.
func (d *Dispatcher) RemoveNode(id uuid.UUID) error {
	return d.submit(OpRemoveNode, id).Error
}

// DisconnectNode removes every connection touching a node via the
// dispatcher.
func (d *Dispatcher) DisconnectNode(id uuid.UUID) error {
	return d.submit(OpDisconnectNode, id).Error
}

// AddConnection adds an edge via the dispatcher.
func (d *Dispatcher) AddConnection(c Connection) error {
	return d.submit(OpAddConnection, c).Error
}

// RemoveConnection removes an edge via the dispatcher.
func (d *Dispatcher) RemoveConnection(c Connection) error {
	return d.submit(OpRemoveConnection, c).Error
}

// SetBypass toggles a node's bypass flag via the dispatcher.
func (d *Dispatcher) SetBypass(id uuid.UUID, bypassed bool) error {
	return d.submit(OpSetBypass, SetBypassData{Node: id, Bypassed: bypassed}).Error
}

// SetNodeState pushes a parameter blob via the dispatcher.
func (d *Dispatcher) SetNodeState(id uuid.UUID, state []byte) error {
	return d.submit(OpSetNodeState, SetNodeStateData{Node: id, State: state}).Error
}

// SwitchWorkspace switches the active workspace via the dispatcher.
func (d *Dispatcher) SwitchWorkspace(index int) error {
	return d.submit(OpSwitchWorkspace, index).Error
}

// ClearWorkspace empties a workspace slot via the dispatcher.
func (d *Dispatcher) ClearWorkspace(index int) error {
	return d.submit(OpClearWorkspace, index).Error
}

// DuplicateWorkspace copies one slot into another via the dispatcher.
func (d *Dispatcher) DuplicateWorkspace(src, dst int) error {
	return d.submit(OpDuplicateWorkspace, DuplicateWorkspaceData{Src: src, Dst: dst}).Error
}

// ResetWorkspaces restores all slots to startup defaults via the
// dispatcher.
func (d *Dispatcher) ResetWorkspaces() error {
	return d.submit(OpResetWorkspaces, nil).Error
}

// GetWorkspaceState captures the workspace manager's persisted shape on
// the control thread. The manager itself is not goroutine-safe, so
// session saves must go through here rather than calling it directly.
func (d *Dispatcher) GetWorkspaceState() (*WorkspaceState, error) {
	result := d.submit(OpGetWorkspaceState, nil)
	if result.Success {
		return result.Data.(*WorkspaceState), nil
	}
	return nil, result.Error
}

// RestoreWorkspaceState reconstructs workspace bookkeeping and the live
// graph from a persisted state, on the control thread.
func (d *Dispatcher) RestoreWorkspaceState(state *WorkspaceState) error {
	return d.submit(OpRestoreWorkspaces, state).Error
}

// Prepare (re)prepares the graph via the dispatcher.
func (d *Dispatcher) Prepare(sampleRate float64, blockSize, numHWIn, numHWOut int, player media.Player) error {
	return d.submit(OpPrepare, PrepareData{
		SampleRate: sampleRate,
		BlockSize:  blockSize,
		NumHWIn:    numHWIn,
		NumHWOut:   numHWOut,
		Player:     player,
	}).Error
}

// Suspend marks the graph offline via the dispatcher.
func (d *Dispatcher) Suspend() error {
	return d.submit(OpSuspend, nil).Error
}

// Flush arms the post-restart silence countdown via the dispatcher.
func (d *Dispatcher) Flush() error {
	return d.submit(OpFlush, nil).Error
}
