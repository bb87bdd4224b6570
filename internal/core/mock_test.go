package core

import (
	"context"
	"encoding/json"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/mock"

	"github.com/edvin/dealersites/internal/certcheck"
	"github.com/edvin/dealersites/internal/dnsanalysis"
	"github.com/edvin/dealersites/internal/hosting"
	"github.com/edvin/dealersites/internal/model"
	"github.com/edvin/dealersites/internal/notify"
	"github.com/edvin/dealersites/internal/propagation"
	"github.com/edvin/dealersites/internal/registrar"
)

// ---------- Mock DB ----------

// mockDB implements the DB interface for testing.
type mockDB struct {
	mock.Mock
}

func (m *mockDB) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDB) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(pgx.Rows), args.Error(1)
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

func (m *mockDB) Begin(ctx context.Context) (pgx.Tx, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(pgx.Tx), args.Error(1)
}

// sqlContaining matches a statement by a fragment of its text.
func sqlContaining(fragment string) any {
	return mock.MatchedBy(func(sql string) bool { return strings.Contains(sql, fragment) })
}

func rowsAffected(n int) pgconn.CommandTag {
	if n == 1 {
		return pgconn.NewCommandTag("UPDATE 1")
	}
	return pgconn.NewCommandTag("UPDATE 0")
}

// ---------- Mock Tx ----------

// mockTx runs statements against the mockDB that began it.
type mockTx struct {
	db         *mockDB
	committed  bool
	rolledBack bool
}

func (t *mockTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }

func (t *mockTx) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}

func (t *mockTx) Rollback(ctx context.Context) error {
	if t.committed {
		return pgx.ErrTxClosed
	}
	t.rolledBack = true
	return nil
}

func (t *mockTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *mockTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (t *mockTx) LargeObjects() pgx.LargeObjects                        { return pgx.LargeObjects{} }
func (t *mockTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *mockTx) Conn() *pgx.Conn { return nil }

func (t *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return t.db.Exec(ctx, sql, arguments...)
}

func (t *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return t.db.Query(ctx, sql, args...)
}

func (t *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return t.db.QueryRow(ctx, sql, args...)
}

// ---------- Mock Row ----------

// mockRow implements pgx.Row for testing.
type mockRow struct {
	scanFunc func(dest ...any) error
}

func (m *mockRow) Scan(dest ...any) error {
	return m.scanFunc(dest...)
}

func errRow(err error) *mockRow {
	return &mockRow{scanFunc: func(...any) error { return err }}
}

func boolRow(v bool) *mockRow {
	return &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*bool)) = v
		return nil
	}}
}

func dealerRow(d model.Dealer) *mockRow {
	return &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*string)) = d.ID
		*(dest[1].(*string)) = d.Name
		*(dest[2].(*string)) = d.Slug
		*(dest[3].(*string)) = d.City
		*(dest[4].(*string)) = d.Email
		*(dest[5].(*time.Time)) = d.CreatedAt
		*(dest[6].(*time.Time)) = d.UpdatedAt
		return nil
	}}
}

func domainRow(d model.Domain) *mockRow {
	return &mockRow{scanFunc: scanDomainInto(d)}
}

func scanDomainInto(d model.Domain) func(dest ...any) error {
	return func(dest ...any) error {
		*(dest[0].(*string)) = d.ID
		*(dest[1].(*string)) = d.DealerID
		*(dest[2].(*string)) = d.Domain
		*(dest[3].(*string)) = d.Slug
		*(dest[4].(*model.DomainType)) = d.Type
		*(dest[5].(*model.DomainStatus)) = d.Status
		*(dest[6].(*model.SSLStatus)) = d.SSLStatus
		*(dest[7].(**time.Time)) = d.SSLExpiresAt
		*(dest[8].(*bool)) = d.IsPrimary
		*(dest[9].(**string)) = d.Registrar
		*(dest[10].(**time.Time)) = d.RegistrationExpiresAt
		*(dest[11].(*bool)) = d.AutoRenew
		*(dest[12].(*time.Time)) = d.CreatedAt
		*(dest[13].(*time.Time)) = d.UpdatedAt
		*(dest[14].(**int)) = d.ExpiryWarnedDays
		return nil
	}
}

// ---------- Mock Rows ----------

// mockRows implements pgx.Rows for testing.
// It iterates through a list of scan functions, one per row.
type mockRows struct {
	callIndex int
	scanFuncs []func(dest ...any) error
	err       error
}

func newMockRows(scanFuncs ...func(dest ...any) error) *mockRows {
	return &mockRows{scanFuncs: scanFuncs}
}

// newEmptyMockRows returns a mockRows that yields zero rows.
func newEmptyMockRows() *mockRows {
	return &mockRows{}
}

func (m *mockRows) Next() bool {
	return m.callIndex < len(m.scanFuncs)
}

func (m *mockRows) Scan(dest ...any) error {
	if m.callIndex < len(m.scanFuncs) {
		fn := m.scanFuncs[m.callIndex]
		m.callIndex++
		return fn(dest...)
	}
	return nil
}

func (m *mockRows) Err() error                                   { return m.err }
func (m *mockRows) Close()                                       {}
func (m *mockRows) CommandTag() pgconn.CommandTag                 { return pgconn.CommandTag{} }
func (m *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (m *mockRows) RawValues() [][]byte                          { return nil }
func (m *mockRows) Values() ([]any, error)                       { return nil, nil }
func (m *mockRows) Conn() *pgx.Conn                              { return nil }

// ---------- In-memory onboarding repository ----------

type memRepo struct {
	mu          sync.Mutex
	onboardings map[string][]byte
	versions    map[string]int64
	records     map[string]map[string]model.RecordStatus
	firstCheck  map[string]time.Time
	resets      int
}

func newMemRepo() *memRepo {
	return &memRepo{
		onboardings: make(map[string][]byte),
		versions:    make(map[string]int64),
		records:     make(map[string]map[string]model.RecordStatus),
		firstCheck:  make(map[string]time.Time),
	}
}

func (r *memRepo) Create(_ context.Context, o *model.DomainOnboarding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.onboardings[o.ID]; ok {
		return ErrConflict
	}
	return r.put(o)
}

func (r *memRepo) put(o *model.DomainOnboarding) error {
	b, err := json.Marshal(o)
	if err != nil {
		return err
	}
	r.onboardings[o.ID] = b
	return nil
}

func (r *memRepo) Get(_ context.Context, id string) (*model.DomainOnboarding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.onboardings[id]
	if !ok {
		return nil, ErrNotFound
	}
	var o model.DomainOnboarding
	if err := json.Unmarshal(b, &o); err != nil {
		return nil, err
	}
	o.Version = r.versions[id]
	return &o, nil
}

func (r *memRepo) Save(ctx context.Context, o *model.DomainOnboarding, from model.OnboardingState) error {
	current, err := r.Get(ctx, o.ID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if current.State != from || r.versions[o.ID] != o.Version {
		return ErrConflict
	}
	if err := r.put(o); err != nil {
		return err
	}
	r.versions[o.ID]++
	o.Version++
	return nil
}

// setState moves a stored onboarding behind the service's back.
func (r *memRepo) setState(id string, state model.OnboardingState) {
	o, _ := r.Get(context.Background(), id)
	o.State = state
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.put(o)
	r.versions[id]++
}

func (r *memRepo) PropagationRecords(_ context.Context, id string) (map[string]model.RecordStatus, time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]model.RecordStatus)
	for k, v := range r.records[id] {
		out[k] = v
	}
	return out, r.firstCheck[id], nil
}

func (r *memRepo) SavePropagation(_ context.Context, id string, records map[string]model.RecordStatus, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.records[id] == nil {
		r.records[id] = make(map[string]model.RecordStatus)
	}
	for k, v := range records {
		r.records[id][k] = v
	}
	if _, ok := r.firstCheck[id]; !ok {
		r.firstCheck[id] = at
	}
	return nil
}

func (r *memRepo) ResetPropagation(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, id)
	delete(r.firstCheck, id)
	r.resets++
	return nil
}

// ---------- Collaborator fakes ----------

// interleavingTracker runs during once before the first check resolves,
// standing in for a writer that races an in-flight check.
type interleavingTracker struct {
	PropagationChecker
	during func()
}

func (t *interleavingTracker) Check(ctx context.Context, expected []propagation.Expectation, prior map[string]model.RecordStatus, now time.Time) map[string]model.RecordStatus {
	if during := t.during; during != nil {
		t.during = nil
		during()
	}
	return t.PropagationChecker.Check(ctx, expected, prior, now)
}

type fakeAnalyzer struct {
	result dnsanalysis.Result
	calls  int
}

func (f *fakeAnalyzer) Analyze(_ context.Context, domain string) dnsanalysis.Result {
	f.calls++
	res := f.result
	res.Analysis.CapturedAt = time.Now()
	return res
}

type fakeResolver struct {
	mu    sync.Mutex
	a     map[string][]string
	cname map[string]string
	txt   map[string][]string
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{a: map[string][]string{}, cname: map[string]string{}, txt: map[string][]string{}}
}

func notFoundErr(host string) error {
	return &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
}

func (f *fakeResolver) LookupIP(_ context.Context, _, host string) ([]net.IP, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	addrs, ok := f.a[host]
	if !ok {
		return nil, notFoundErr(host)
	}
	var ips []net.IP
	for _, a := range addrs {
		ips = append(ips, net.ParseIP(a))
	}
	return ips, nil
}

func (f *fakeResolver) LookupCNAME(_ context.Context, host string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	target, ok := f.cname[host]
	if !ok {
		return "", notFoundErr(host)
	}
	return target, nil
}

func (f *fakeResolver) LookupTXT(_ context.Context, name string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	txt, ok := f.txt[name]
	if !ok {
		return nil, notFoundErr(name)
	}
	return txt, nil
}

type sentNotification struct {
	recipient string
	params    notify.Params
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *recordingNotifier) Notify(_ context.Context, recipient string, p notify.Params) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{recipient: recipient, params: p})
}

func (n *recordingNotifier) kinds() []notify.Kind {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notify.Kind
	for _, s := range n.sent {
		out = append(out, s.params.Kind())
	}
	return out
}

type fakeBinder struct {
	project      hosting.Project
	verification hosting.DomainVerification
	attached     []string
	err          error
}

func (b *fakeBinder) EnsureProject(_ context.Context, slug string) (*hosting.Project, error) {
	if b.err != nil {
		return nil, b.err
	}
	p := b.project
	return &p, nil
}

func (b *fakeBinder) AttachDomain(_ context.Context, projectID, domain string) (*hosting.DomainVerification, error) {
	b.attached = append(b.attached, domain)
	v := b.verification
	return &v, nil
}

type fakeCertChecker struct {
	certs map[string]*certcheck.Certificate
	err   error
}

func (f *fakeCertChecker) Check(_ context.Context, host string) (*certcheck.Certificate, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.certs[host], nil
}

type fakeRenewer struct {
	renewed []string
	err     error
}

func (f *fakeRenewer) Renew(_ context.Context, domain string, years int) (*registrar.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.renewed = append(f.renewed, domain)
	return &registrar.Order{OrderID: "renew-1", Domain: domain}, nil
}
