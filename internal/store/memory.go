package store

import (
	"context"
	"math"
	"sort"
	"sync"
)

type memFile struct {
	id       uint32
	owner    string
	name     string
	pocketID uint32
	data     []byte
}

type fileKey struct {
	owner string
	name  string
}

// Memory is an in-process Store. A single lock makes every method one
// serializable transaction.
type Memory struct {
	mu         sync.Mutex
	closed     bool
	agents     map[string]Agent
	pockets    map[uint32]*Pocket
	files      map[uint32]*memFile
	fileNames  map[fileKey]uint32
	nextPocket uint32
	nextFile   uint32
}

func NewMemory() *Memory {
	return &Memory{
		agents:     make(map[string]Agent),
		pockets:    make(map[uint32]*Pocket),
		files:      make(map[uint32]*memFile),
		fileNames:  make(map[fileKey]uint32),
		nextPocket: 1,
		nextFile:   1,
	}
}

func (m *Memory) lock() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	return nil
}

func (m *Memory) AgentExists(_ context.Context, address string) (bool, error) {
	if err := m.lock(); err != nil {
		return false, err
	}
	defer m.mu.Unlock()
	_, ok := m.agents[address]
	return ok, nil
}

func (m *Memory) InsertAgent(_ context.Context, agent Agent) error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.mu.Unlock()
	if _, ok := m.agents[agent.Address]; ok {
		return ErrAgentExists
	}
	agent.PublicKeyDER = append([]byte(nil), agent.PublicKeyDER...)
	m.agents[agent.Address] = agent
	return nil
}

func (m *Memory) FetchAgentPubkey(_ context.Context, address string) ([]byte, error) {
	if err := m.lock(); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	agent, ok := m.agents[address]
	if !ok {
		return nil, &AgentNotFoundError{Address: address}
	}
	return append([]byte(nil), agent.PublicKeyDER...), nil
}

func (m *Memory) InsertPocket(_ context.Context, owner, depositAddress string) (uint32, error) {
	if err := m.lock(); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()
	if m.nextPocket == 0 {
		return 0, ErrIDSpaceExhausted
	}
	id := m.nextPocket
	m.nextPocket++
	m.pockets[id] = &Pocket{ID: id, Owner: owner, DepositAddress: depositAddress}
	return id, nil
}

func (m *Memory) FetchPocket(_ context.Context, id uint32) (Pocket, error) {
	if err := m.lock(); err != nil {
		return Pocket{}, err
	}
	defer m.mu.Unlock()
	p, ok := m.pockets[id]
	if !ok {
		return Pocket{}, &PocketNotFoundError{PocketID: id}
	}
	return *p, nil
}

func (m *Memory) FetchPocketOwner(ctx context.Context, id uint32) (string, error) {
	p, err := m.FetchPocket(ctx, id)
	if err != nil {
		return "", err
	}
	return p.Owner, nil
}

func (m *Memory) UpdatePocketOwner(_ context.Context, id uint32, owner string) error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.mu.Unlock()
	p, ok := m.pockets[id]
	if !ok {
		return &PocketNotFoundError{PocketID: id}
	}
	p.Owner = owner
	return nil
}

func (m *Memory) UpdatePocketDepositAddress(_ context.Context, id uint32, depositAddress string) error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.mu.Unlock()
	p, ok := m.pockets[id]
	if !ok {
		return &PocketNotFoundError{PocketID: id}
	}
	p.DepositAddress = depositAddress
	return nil
}

func (m *Memory) CreditPocket(_ context.Context, id uint32, amount uint64) error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.mu.Unlock()
	p, ok := m.pockets[id]
	if !ok {
		return &PocketNotFoundError{PocketID: id}
	}
	next, ok := AddCredit(p.Credit, amount)
	if !ok {
		return &CreditOverflowError{PocketID: id, Balance: p.Credit, Added: amount}
	}
	p.Credit = next
	return nil
}

func (m *Memory) DebitThenCreditPockets(_ context.Context, from, to uint32, amount uint64) error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.mu.Unlock()
	src, ok := m.pockets[from]
	if !ok {
		return &PocketNotFoundError{PocketID: from}
	}
	if src.Credit < amount {
		return &InsufficientCreditError{PocketID: from, Required: amount, Available: src.Credit}
	}
	dst, ok := m.pockets[to]
	if !ok {
		return &PocketNotFoundError{PocketID: to}
	}
	if from == to {
		return nil
	}
	next, ok := AddCredit(dst.Credit, amount)
	if !ok {
		return &CreditOverflowError{PocketID: to, Balance: dst.Credit, Added: amount}
	}
	src.Credit -= amount
	dst.Credit = next
	return nil
}

func (m *Memory) InsertFile(_ context.Context, owner, name string, pocketID uint32) (uint32, error) {
	if err := m.lock(); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()
	if _, ok := m.pockets[pocketID]; !ok {
		return 0, &PocketNotFoundError{PocketID: pocketID}
	}
	key := fileKey{owner: owner, name: name}
	if _, ok := m.fileNames[key]; ok {
		return 0, ErrFileExists
	}
	if m.nextFile == 0 {
		return 0, ErrIDSpaceExhausted
	}
	id := m.nextFile
	m.nextFile++
	m.files[id] = &memFile{id: id, owner: owner, name: name, pocketID: pocketID, data: []byte{}}
	m.fileNames[key] = id
	return id, nil
}

func (m *Memory) FetchFileOwner(_ context.Context, id uint32) (string, error) {
	if err := m.lock(); err != nil {
		return "", err
	}
	defer m.mu.Unlock()
	f, ok := m.files[id]
	if !ok {
		return "", &FileNotFoundError{FileID: id}
	}
	return f.owner, nil
}

func (m *Memory) UpdateFileData(_ context.Context, id uint32, data []byte) error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.mu.Unlock()
	f, ok := m.files[id]
	if !ok {
		return &FileNotFoundError{FileID: id}
	}
	f.data = append([]byte{}, data...)
	return nil
}

func (m *Memory) ReadFileData(_ context.Context, id uint32) ([]byte, error) {
	if err := m.lock(); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	f, ok := m.files[id]
	if !ok {
		return nil, &FileNotFoundError{FileID: id}
	}
	return append([]byte{}, f.data...), nil
}

func (m *Memory) ChargeUpkeepFees(_ context.Context, schedule FeeSchedule) (FeeReport, error) {
	if err := m.lock(); err != nil {
		return FeeReport{}, err
	}
	defer m.mu.Unlock()

	type usage struct {
		files uint64
		bytes uint64
	}
	perPocket := make(map[uint32]*usage)
	for _, f := range m.files {
		u := perPocket[f.pocketID]
		if u == nil {
			u = &usage{}
			perPocket[f.pocketID] = u
		}
		u.files++
		u.bytes += uint64(len(f.data))
	}

	ids := make([]uint32, 0, len(perPocket))
	for id := range perPocket {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var report FeeReport
	bankrupt := make(map[uint32]struct{})
	for _, id := range ids {
		fee := UpkeepFee(perPocket[id].files, perPocket[id].bytes, schedule)
		if fee == 0 {
			continue
		}
		p, ok := m.pockets[id]
		if !ok || p.Credit < fee {
			bankrupt[id] = struct{}{}
			report.PocketsBankrupt++
			continue
		}
		p.Credit -= fee
		report.PocketsCharged++
		if report.Collected > math.MaxUint64-fee {
			report.Collected = math.MaxUint64
		} else {
			report.Collected += fee
		}
	}
	for id, f := range m.files {
		if _, ok := bankrupt[f.pocketID]; ok {
			delete(m.files, id)
			delete(m.fileNames, fileKey{owner: f.owner, name: f.name})
			report.FilesDeleted++
		}
	}
	return report, nil
}

func (m *Memory) Stats(_ context.Context) (Stats, error) {
	if err := m.lock(); err != nil {
		return Stats{}, err
	}
	defer m.mu.Unlock()
	st := Stats{Agents: len(m.agents), Pockets: len(m.pockets), Files: len(m.files)}
	for _, p := range m.pockets {
		sum, ok := AddCredit(st.TotalCredit, p.Credit)
		if !ok {
			sum = math.MaxUint64
		}
		st.TotalCredit = sum
	}
	for _, f := range m.files {
		st.StoredBytes += uint64(len(f.data))
	}
	return st, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
