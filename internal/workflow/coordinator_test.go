package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/and161185/signdesk/internal/capture"
	"github.com/and161185/signdesk/internal/errs"
	"github.com/and161185/signdesk/internal/model"
)

type memPersist struct {
	failOn  string // method name that should fail, "" for none
	inserts int
	saves   int
}

func (m *memPersist) call(name string) error {
	if name == m.failOn {
		return errors.New("backing store down")
	}
	m.saves++
	return nil
}

func (m *memPersist) InsertDocument(_ context.Context, _ *model.Document) error {
	m.inserts++
	return m.call("InsertDocument")
}
func (m *memPersist) SaveFields(_ context.Context, _ uuid.UUID, _ []model.SignatureField) error {
	return m.call("SaveFields")
}
func (m *memPersist) SaveSigners(_ context.Context, _ uuid.UUID, _ []model.Signer) error {
	return m.call("SaveSigners")
}
func (m *memPersist) SaveStatus(_ context.Context, _ uuid.UUID, _ model.DocumentStatus) error {
	return m.call("SaveStatus")
}
func (m *memPersist) SavePublicLink(_ context.Context, _ uuid.UUID, _ string) error {
	return m.call("SavePublicLink")
}
func (m *memPersist) AppendSignature(_ context.Context, _ model.Signature) error {
	return m.call("AppendSignature")
}
func (m *memPersist) AppendAudit(_ context.Context, _ uuid.UUID, _ []model.AuditEntry) error {
	return m.call("AppendAudit")
}

var _ Persister = (*memPersist)(nil)

func newTestCoordinator(p Persister) *Coordinator {
	c := New(p, capture.NewNormalizer(0), zap.NewNop(), time.Second)
	base := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	tick := 0
	c.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return c
}

var owner = uuid.Must(uuid.NewV4())

func actor() Actor { return Actor{Name: "HR Department", IP: "192.168.1.1"} }

// twoSignerDoc creates a pending document with one required signature field
// per signer.
func twoSignerDoc(t *testing.T, c *Coordinator, enforceOrder bool) *model.Document {
	t.Helper()
	ctx := context.Background()

	d, err := c.CreateDocument(ctx, CreateDocumentParams{
		Name:         "Employment Contract.pdf",
		Owner:        owner,
		Size:         2456789,
		Pages:        []model.PageSize{{Width: 800, Height: 1000}},
		EnforceOrder: enforceOrder,
		Signers: []NewSigner{
			{Name: "Alice", Email: "alice@example.com", Order: 1},
			{Name: "Bob", Email: "bob@example.com", Order: 2},
		},
	}, actor())
	require.NoError(t, err)

	for _, s := range d.Signers {
		d, err = c.PlaceField(ctx, d.ID, PlaceFieldParams{
			Page: 1, X: 100, Y: 100, Type: model.FieldSignature,
			AssignedTo: s.ID, Required: true,
		}, actor())
		require.NoError(t, err)
	}
	d, err = c.Finalize(ctx, d.ID, actor())
	require.NoError(t, err)
	require.Equal(t, model.DocPending, d.Status)
	return d
}

func fieldFor(d *model.Document, signerID uuid.UUID) *model.SignatureField {
	for i := range d.Fields {
		if d.Fields[i].AssignedTo == signerID {
			return &d.Fields[i]
		}
	}
	return nil
}

func typedCapture(text string) capture.Capture {
	return capture.Capture{Method: model.CaptureTyped, Text: text, Font: capture.FontCursive}
}

func TestCreateDocument_Validation(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator(&memPersist{})
	ctx := context.Background()

	_, err := c.CreateDocument(ctx, CreateDocumentParams{Name: "", Pages: []model.PageSize{{Width: 1, Height: 1}}}, actor())
	require.ErrorIs(t, err, errs.ErrEmptyInput)

	_, err = c.CreateDocument(ctx, CreateDocumentParams{Name: "x.pdf"}, actor())
	require.ErrorIs(t, err, errs.ErrInvalidGeometry)

	_, err = c.CreateDocument(ctx, CreateDocumentParams{
		Name:  "x.pdf",
		Pages: []model.PageSize{{Width: 800, Height: 1000}},
		Signers: []NewSigner{
			{Name: "a", Order: 1},
			{Name: "b", Order: 1},
		},
	}, actor())
	require.ErrorIs(t, err, errs.ErrInvalidAssignment, "duplicate order must be rejected")
}

func TestCreateDocument_StartsDraftWithCreationEntry(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator(&memPersist{})

	d, err := c.CreateDocument(context.Background(), CreateDocumentParams{
		Name:  "x.pdf",
		Owner: owner,
		Pages: []model.PageSize{{Width: 800, Height: 1000}},
	}, actor())
	require.NoError(t, err)
	require.Equal(t, model.DocDraft, d.Status)
	require.Len(t, d.AuditTrail, 1)
	require.Equal(t, ActionDocumentCreated, d.AuditTrail[0].Action)
	require.Equal(t, "HR Department", d.AuditTrail[0].User)
	require.Equal(t, "192.168.1.1", d.AuditTrail[0].IPAddress)
}

func TestPlaceField_UnknownSigner_NoAuditEntry(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator(&memPersist{})
	d := twoSignerDoc(t, c, false)

	before, err := c.EntriesFor(d.ID)
	require.NoError(t, err)

	_, err = c.PlaceField(context.Background(), d.ID, PlaceFieldParams{
		Page: 1, X: 10, Y: 10, Type: model.FieldSignature,
		AssignedTo: uuid.Must(uuid.NewV4()), Required: true,
	}, actor())
	require.ErrorIs(t, err, errs.ErrInvalidAssignment)

	after, err := c.EntriesFor(d.ID)
	require.NoError(t, err)
	require.Equal(t, len(before), len(after), "failed command must not append audit entries")
}

func TestPlaceField_DefaultsAndGeometry(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator(&memPersist{})
	d := twoSignerDoc(t, c, false)

	d2, err := c.PlaceField(context.Background(), d.ID, PlaceFieldParams{
		Page: 1, X: 0, Y: 0, Type: model.FieldDate,
		AssignedTo: d.Signers[0].ID,
	}, actor())
	require.NoError(t, err)
	f := d2.Fields[len(d2.Fields)-1]
	require.InDelta(t, 200.0/800, f.Rect.W, 1e-9)
	require.InDelta(t, 60.0/1000, f.Rect.H, 1e-9)
	require.False(t, f.Signed)

	_, err = c.PlaceField(context.Background(), d.ID, PlaceFieldParams{
		Page: 2, X: 0, Y: 0, Type: model.FieldSignature, AssignedTo: d.Signers[0].ID,
	}, actor())
	require.ErrorIs(t, err, errs.ErrInvalidGeometry, "page 2 does not exist")
}

func TestMoveField_OutOfBounds_PositionUnchanged(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator(&memPersist{})
	d := twoSignerDoc(t, c, false)
	f := d.Fields[0]

	_, err := c.MoveField(context.Background(), d.ID, f.ID, -10, 100, actor())
	require.ErrorIs(t, err, errs.ErrInvalidGeometry)

	cur, err := c.Get(d.ID)
	require.NoError(t, err)
	require.Equal(t, f.Rect, cur.FieldByID(f.ID).Rect)
}

func TestMoveField_OK(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator(&memPersist{})
	d := twoSignerDoc(t, c, false)
	f := d.Fields[0]

	d2, err := c.MoveField(context.Background(), d.ID, f.ID, 400, 500, actor())
	require.NoError(t, err)
	moved := d2.FieldByID(f.ID)
	require.InDelta(t, 0.5, moved.Rect.X, 1e-9)
	require.InDelta(t, 0.5, moved.Rect.Y, 1e-9)
	require.Equal(t, f.Rect.W, moved.Rect.W)
	require.Equal(t, ActionFieldMoved, d2.AuditTrail[len(d2.AuditTrail)-1].Action)

	_, err = c.MoveField(context.Background(), d.ID, uuid.Must(uuid.NewV4()), 1, 1, actor())
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestDeleteField_RefusedOnceSigned(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator(&memPersist{})
	d := twoSignerDoc(t, c, false)
	alice := d.Signers[0]
	f := fieldFor(d, alice.ID)

	_, err := c.SubmitSignature(context.Background(), d.ID, f.ID, alice.ID, typedCapture("Alice"), actor())
	require.NoError(t, err)

	_, err = c.DeleteField(context.Background(), d.ID, f.ID, actor())
	require.ErrorIs(t, err, errs.ErrFieldSigned)
}

func TestTwoSignerScenario(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator(&memPersist{})
	d := twoSignerDoc(t, c, false)
	ctx := context.Background()
	alice, bob := d.Signers[0], d.Signers[1]

	d, err := c.SubmitSignature(ctx, d.ID, fieldFor(d, alice.ID).ID, alice.ID, typedCapture("Alice"), actor())
	require.NoError(t, err)
	require.Equal(t, model.DocSigned, d.Status)
	require.Equal(t, model.SignerSigned, d.SignerByID(alice.ID).Status)
	require.NotNil(t, d.SignerByID(alice.ID).SignedAt)
	require.Equal(t, model.SignerPending, d.SignerByID(bob.ID).Status)
	require.Len(t, d.Signatures, 1)

	d, err = c.SubmitSignature(ctx, d.ID, fieldFor(d, bob.ID).ID, bob.ID, typedCapture("Bob"), actor())
	require.NoError(t, err)
	require.Equal(t, model.DocCompleted, d.Status)
	require.Equal(t, model.SignerSigned, d.SignerByID(bob.ID).Status)

	var actions []string
	for _, e := range d.AuditTrail {
		actions = append(actions, e.Action)
	}
	require.Equal(t, []string{
		ActionDocumentCreated,
		ActionFieldPlaced,
		ActionFieldPlaced,
		ActionFieldSigned,
		ActionFieldSigned,
		ActionDocumentCompleted,
	}, actions)
}

func TestCompletedInvariant_HeldAfterEveryCommand(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator(&memPersist{})
	d := twoSignerDoc(t, c, false)
	ctx := context.Background()

	check := func() {
		cur, err := c.Get(d.ID)
		require.NoError(t, err)
		all := len(cur.Fields) > 0
		for _, f := range cur.Fields {
			if f.Required && !f.Signed {
				all = false
			}
		}
		require.Equal(t, all, cur.Status == model.DocCompleted,
			"completed iff every required field is signed")
	}

	check()
	for _, s := range d.Signers {
		_, err := c.SubmitSignature(ctx, d.ID, fieldFor(d, s.ID).ID, s.ID, typedCapture(s.Name), actor())
		require.NoError(t, err)
		check()
	}
	_, err := c.Unsign(ctx, d.ID, d.Fields[0].ID, actor())
	require.NoError(t, err)
	check()
}

func TestSubmitSignature_Failures(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator(&memPersist{})
	d := twoSignerDoc(t, c, false)
	ctx := context.Background()
	alice, bob := d.Signers[0], d.Signers[1]

	_, err := c.SubmitSignature(ctx, d.ID, uuid.Must(uuid.NewV4()), alice.ID, typedCapture("A"), actor())
	require.ErrorIs(t, err, errs.ErrNotFound)

	_, err = c.SubmitSignature(ctx, d.ID, fieldFor(d, alice.ID).ID, uuid.Must(uuid.NewV4()), typedCapture("A"), actor())
	require.ErrorIs(t, err, errs.ErrNotFound)

	_, err = c.SubmitSignature(ctx, d.ID, fieldFor(d, alice.ID).ID, bob.ID, typedCapture("B"), actor())
	require.ErrorIs(t, err, errs.ErrWrongSigner)

	_, err = c.SubmitSignature(ctx, d.ID, fieldFor(d, alice.ID).ID, alice.ID,
		capture.Capture{Method: model.CaptureTyped, Text: "  "}, actor())
	require.ErrorIs(t, err, errs.ErrEmptyInput)

	entries, err := c.EntriesFor(d.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3, "create + two placements; failures append nothing")
}

func TestEnforceOrder(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator(&memPersist{})
	d := twoSignerDoc(t, c, true)
	ctx := context.Background()
	alice, bob := d.Signers[0], d.Signers[1]

	_, err := c.SubmitSignature(ctx, d.ID, fieldFor(d, bob.ID).ID, bob.ID, typedCapture("Bob"), actor())
	require.ErrorIs(t, err, errs.ErrOrderViolation)

	_, err = c.SubmitSignature(ctx, d.ID, fieldFor(d, alice.ID).ID, alice.ID, typedCapture("Alice"), actor())
	require.NoError(t, err)

	d, err = c.SubmitSignature(ctx, d.ID, fieldFor(d, bob.ID).ID, bob.ID, typedCapture("Bob"), actor())
	require.NoError(t, err)
	require.Equal(t, model.DocCompleted, d.Status)
}

func TestOrderNotEnforcedByDefault(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator(&memPersist{})
	d := twoSignerDoc(t, c, false)

	bob := d.Signers[1]
	_, err := c.SubmitSignature(context.Background(), d.ID, fieldFor(d, bob.ID).ID, bob.ID, typedCapture("Bob"), actor())
	require.NoError(t, err)
}

func TestReject_TerminalAndLocksDocument(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator(&memPersist{})
	d := twoSignerDoc(t, c, false)
	ctx := context.Background()
	alice, bob := d.Signers[0], d.Signers[1]

	d, err := c.Reject(ctx, d.ID, bob.ID, "not acceptable", actor())
	require.NoError(t, err)
	require.Equal(t, model.DocRejected, d.Status)
	require.Equal(t, model.SignerRejected, d.SignerByID(bob.ID).Status)
	last := d.AuditTrail[len(d.AuditTrail)-1]
	require.Equal(t, ActionDocumentRejected, last.Action)
	require.NotContains(t, last.Details, "not acceptable", "client text must not enter the trail")

	_, err = c.SubmitSignature(ctx, d.ID, fieldFor(d, alice.ID).ID, alice.ID, typedCapture("Alice"), actor())
	require.ErrorIs(t, err, errs.ErrDocumentLocked)

	_, err = c.Reject(ctx, d.ID, alice.ID, "", actor())
	require.ErrorIs(t, err, errs.ErrDocumentLocked)
}

func TestReject_AlreadySignedSigner(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator(&memPersist{})
	d := twoSignerDoc(t, c, false)
	ctx := context.Background()
	alice := d.Signers[0]

	_, err := c.SubmitSignature(ctx, d.ID, fieldFor(d, alice.ID).ID, alice.ID, typedCapture("Alice"), actor())
	require.NoError(t, err)

	_, err = c.Reject(ctx, d.ID, alice.ID, "", actor())
	require.ErrorIs(t, err, errs.ErrSignerTerminal)
}

func TestUnsign_RevertsSignerAndDocument(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator(&memPersist{})
	d := twoSignerDoc(t, c, false)
	ctx := context.Background()

	for _, s := range d.Signers {
		var err error
		d, err = c.SubmitSignature(ctx, d.ID, fieldFor(d, s.ID).ID, s.ID, typedCapture(s.Name), actor())
		require.NoError(t, err)
	}
	require.Equal(t, model.DocCompleted, d.Status)
	sigCount := len(d.Signatures)

	alice := d.Signers[0]
	d, err := c.Unsign(ctx, d.ID, fieldFor(d, alice.ID).ID, actor())
	require.NoError(t, err)
	require.Equal(t, model.DocSigned, d.Status, "completion un-derives when inputs change")
	require.Equal(t, model.SignerPending, d.SignerByID(alice.ID).Status)
	require.Nil(t, d.SignerByID(alice.ID).SignedAt)
	require.False(t, fieldFor(d, alice.ID).Signed)
	require.Empty(t, fieldFor(d, alice.ID).SignatureImage)
	require.Len(t, d.Signatures, sigCount, "historical signature records are never deleted")
	require.Equal(t, ActionFieldUnsigned, d.AuditTrail[len(d.AuditTrail)-1].Action)

	_, err = c.Unsign(ctx, d.ID, fieldFor(d, alice.ID).ID, actor())
	require.ErrorIs(t, err, errs.ErrNotFound, "field no longer carries a signature")
}

func TestUnsignThenResign_TypedImageReproduced(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator(&memPersist{})
	d := twoSignerDoc(t, c, false)
	ctx := context.Background()
	alice := d.Signers[0]
	fid := fieldFor(d, alice.ID).ID

	d, err := c.SubmitSignature(ctx, d.ID, fid, alice.ID, typedCapture("Jane Doe"), actor())
	require.NoError(t, err)
	first := append([]byte(nil), d.FieldByID(fid).SignatureImage...)

	_, err = c.Unsign(ctx, d.ID, fid, actor())
	require.NoError(t, err)

	d, err = c.SubmitSignature(ctx, d.ID, fid, alice.ID, typedCapture("Jane Doe"), actor())
	require.NoError(t, err)
	require.Equal(t, first, d.FieldByID(fid).SignatureImage)
}

func TestSignatureRecord_KeepsPlacementAtSigningTime(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator(&memPersist{})
	d := twoSignerDoc(t, c, false)
	ctx := context.Background()
	alice := d.Signers[0]
	fid := fieldFor(d, alice.ID).ID

	d, err := c.SubmitSignature(ctx, d.ID, fid, alice.ID, typedCapture("Alice"), actor())
	require.NoError(t, err)
	recorded := d.Signatures[0].Rect

	d, err = c.MoveField(ctx, d.ID, fid, 500, 700, actor())
	require.NoError(t, err)
	require.NotEqual(t, recorded, d.FieldByID(fid).Rect)
	require.Equal(t, recorded, d.Signatures[0].Rect, "field moves must not rewrite history")
}

func TestPersistFailure_InMemoryStateStands(t *testing.T) {
	t.Parallel()
	p := &memPersist{}
	c := newTestCoordinator(p)
	d := twoSignerDoc(t, c, false)
	alice := d.Signers[0]

	p.failOn = "SaveFields"
	snap, err := c.SubmitSignature(context.Background(), d.ID, fieldFor(d, alice.ID).ID, alice.ID, typedCapture("Alice"), actor())
	require.ErrorIs(t, err, errs.ErrPersistence)

	var pe *PersistError
	require.ErrorAs(t, err, &pe)
	require.NotNil(t, snap)
	require.Equal(t, snap.Status, pe.Snapshot.Status)
	require.True(t, snap.FieldByID(fieldFor(d, alice.ID).ID).Signed, "snapshot reflects the applied transition")

	cur, err := c.Get(d.ID)
	require.NoError(t, err)
	require.Equal(t, model.DocSigned, cur.Status, "in-memory transition is not rolled back")
}

func TestFinalize_RequiresDraft(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator(&memPersist{})
	d := twoSignerDoc(t, c, false)

	_, err := c.Finalize(context.Background(), d.ID, actor())
	require.ErrorIs(t, err, errs.ErrDocumentLocked)
}

func TestEntriesAcross_MergedByTimestamp(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator(&memPersist{})
	a := twoSignerDoc(t, c, false)
	b := twoSignerDoc(t, c, false)

	tagged := c.EntriesAcross([]uuid.UUID{a.ID, b.ID, uuid.Must(uuid.NewV4())})
	require.Len(t, tagged, 6)
	for i := 1; i < len(tagged); i++ {
		require.False(t, tagged[i].Timestamp.Before(tagged[i-1].Timestamp))
	}
	seen := map[uuid.UUID]bool{}
	for _, e := range tagged {
		seen[e.DocumentID] = true
	}
	require.True(t, seen[a.ID] && seen[b.ID])
}

func TestGet_ReturnsIsolatedSnapshot(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator(&memPersist{})
	d := twoSignerDoc(t, c, false)

	snap, err := c.Get(d.ID)
	require.NoError(t, err)
	snap.Fields[0].Signed = true
	snap.Signers[0].Status = model.SignerRejected

	cur, err := c.Get(d.ID)
	require.NoError(t, err)
	require.False(t, cur.Fields[0].Signed)
	require.Equal(t, model.SignerPending, cur.Signers[0].Status)
}

func TestListByOwner(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator(&memPersist{})
	d := twoSignerDoc(t, c, false)

	docs := c.ListByOwner(owner)
	require.NotEmpty(t, docs)
	found := false
	for _, x := range docs {
		require.Equal(t, owner, x.Owner)
		if x.ID == d.ID {
			found = true
		}
	}
	require.True(t, found)
	require.Empty(t, c.ListByOwner(uuid.Must(uuid.NewV4())))
}

func TestSetPublicLink(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator(&memPersist{})
	d := twoSignerDoc(t, c, false)

	d2, err := c.SetPublicLink(context.Background(), d.ID, "https://sign.example/s/tok123")
	require.NoError(t, err)
	require.Equal(t, "https://sign.example/s/tok123", d2.PublicLink)
}

func TestLoad_ExistingStateWins(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator(&memPersist{})
	d := twoSignerDoc(t, c, false)

	stale := d.Clone()
	stale.Name = "stale.pdf"
	c.Load(stale)

	cur, err := c.Get(d.ID)
	require.NoError(t, err)
	require.Equal(t, d.Name, cur.Name)
}
