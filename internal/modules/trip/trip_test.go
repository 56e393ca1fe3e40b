// README: Trip lifecycle tests (assignment, accept/decline, delivery, concurrency).
package trip

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"linehaul/internal/modules/fleet"
	"linehaul/internal/modules/parcel"
	"linehaul/internal/types"
)

type fakeNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeNotifier) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeNotifier) OfferCreated(_ context.Context, _ types.ID, _ string, _, _ types.ID, _ []types.ID) error {
	f.record("offer_created")
	return nil
}

func (f *fakeNotifier) OfferAccepted(_ context.Context, _, _ types.ID) error {
	f.record("offer_accepted")
	return nil
}

func (f *fakeNotifier) OfferDeclined(_ context.Context, _, _ types.ID) error {
	f.record("offer_declined")
	return nil
}

func (f *fakeNotifier) DeclineEscalated(_ context.Context, _ types.ID, _ string, _, _ types.ID, _ []types.ID) error {
	f.record("decline_escalated")
	return nil
}

func (f *fakeNotifier) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

type fakeTracker struct {
	mu       sync.Mutex
	open     map[types.ID]bool
	progress map[types.ID]int
	sos      map[types.ID]bool
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{
		open:     map[types.ID]bool{},
		progress: map[types.ID]int{},
		sos:      map[types.ID]bool{},
	}
}

func (f *fakeTracker) TripAccepted(_ context.Context, t *Trip) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open[t.ID] = true
	f.progress[t.ID] = ComputeProgress(t)
	return nil
}

func (f *fakeTracker) TripClosed(_ context.Context, id types.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.open, id)
	return nil
}

func (f *fakeTracker) ProgressChanged(_ context.Context, t *Trip) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress[t.ID] = ComputeProgress(t)
	return nil
}

func (f *fakeTracker) SOSChanged(_ context.Context, id types.ID, active bool, _ *types.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sos[id] = active
	return nil
}

type testEnv struct {
	svc       *Service
	store     *MemStore
	fleet     *fleet.Service
	parcels   parcel.Store
	notes     *fakeNotifier
	track     *fakeTracker
	driverID  types.ID
	vehicleID types.ID
	parcelIDs []types.ID
}

// setupTestEnv builds a service over in-memory stores with one punched-in
// driver, one vehicle, and one booked parcel per weight given.
func setupTestEnv(t *testing.T, weights ...float64) *testEnv {
	t.Helper()
	ctx := context.Background()

	fleetSvc := fleet.NewService(fleet.NewMemStore())
	driver, err := fleetSvc.RegisterDriver(ctx, fleet.RegisterDriverCommand{Name: "A-Ming", LicenseNo: "LIC-001"})
	if err != nil {
		t.Fatalf("register driver: %v", err)
	}
	if err := fleetSvc.SetAvailable(ctx, driver.ID, true); err != nil {
		t.Fatalf("punch in: %v", err)
	}
	vehicle, err := fleetSvc.RegisterVehicle(ctx, fleet.RegisterVehicleCommand{Plate: "KLA-8812", CapacityKg: 1000})
	if err != nil {
		t.Fatalf("register vehicle: %v", err)
	}

	parcelStore := parcel.NewMemStore()
	var parcelIDs []types.ID
	for i, w := range weights {
		p := &parcel.Parcel{
			ID:       types.NewID(),
			WeightKg: w,
			Status:   parcel.StatusBooked,
			Destination: &parcel.Destination{
				Position: types.Point{Lat: 25.03 + float64(i)*0.01, Lng: 121.56},
				Name:     "stop",
				Seq:      i + 1,
			},
			CreatedAt: time.Now(),
		}
		if err := parcelStore.Create(ctx, p); err != nil {
			t.Fatalf("create parcel: %v", err)
		}
		parcelIDs = append(parcelIDs, p.ID)
	}

	store := NewMemStore()
	notes := &fakeNotifier{}
	track := newFakeTracker()
	svc := NewService(store, fleetSvc, parcelStore, Deps{Notifier: notes, Tracker: track})

	return &testEnv{
		svc:       svc,
		store:     store,
		fleet:     fleetSvc,
		parcels:   parcelStore,
		notes:     notes,
		track:     track,
		driverID:  driver.ID,
		vehicleID: vehicle.ID,
		parcelIDs: parcelIDs,
	}
}

func (e *testEnv) addDriver(t *testing.T, name string) types.ID {
	t.Helper()
	ctx := context.Background()
	d, err := e.fleet.RegisterDriver(ctx, fleet.RegisterDriverCommand{Name: name, LicenseNo: "LIC-" + name})
	if err != nil {
		t.Fatalf("register driver: %v", err)
	}
	if err := e.fleet.SetAvailable(ctx, d.ID, true); err != nil {
		t.Fatalf("punch in: %v", err)
	}
	return d.ID
}

func (e *testEnv) mustCreate(t *testing.T) *Trip {
	t.Helper()
	tr, err := e.svc.Create(context.Background(), CreateCommand{
		ParcelIDs: e.parcelIDs,
		DriverID:  e.driverID,
		VehicleID: e.vehicleID,
		Start:     types.Point{Lat: 25.033, Lng: 121.565},
	})
	if err != nil {
		t.Fatalf("create trip: %v", err)
	}
	return tr
}

func (e *testEnv) assertParcelStatus(t *testing.T, id types.ID, want parcel.Status) {
	t.Helper()
	p, err := e.parcels.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get parcel: %v", err)
	}
	if p.Status != want {
		t.Errorf("parcel %s status = %s, want %s", id, p.Status, want)
	}
}

func (e *testEnv) assertDispatch(t *testing.T, id types.ID, want fleet.DispatchStatus) {
	t.Helper()
	d, err := e.fleet.GetDriver(context.Background(), id)
	if err != nil {
		t.Fatalf("get driver: %v", err)
	}
	if d.Dispatch != want {
		t.Errorf("driver dispatch = %s, want %s", d.Dispatch, want)
	}
}

func TestTripFlowHappyPath(t *testing.T) {
	env := setupTestEnv(t, 100, 200)
	ctx := context.Background()

	tr := env.mustCreate(t)
	if tr.Status != StatusPending {
		t.Fatalf("status = %s, want pending", tr.Status)
	}
	env.assertDispatch(t, env.driverID, fleet.DispatchPending)
	for _, id := range env.parcelIDs {
		env.assertParcelStatus(t, id, parcel.StatusPending)
	}
	if env.notes.count("offer_created") != 1 {
		t.Errorf("offer_created notifications = %d, want 1", env.notes.count("offer_created"))
	}

	tr, err := env.svc.Accept(ctx, AcceptCommand{TripID: tr.ID, DriverID: env.driverID})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if tr.Status != StatusInProgress {
		t.Fatalf("status after accept = %s, want in_progress", tr.Status)
	}
	env.assertDispatch(t, env.driverID, fleet.DispatchOnTrip)
	for _, id := range env.parcelIDs {
		env.assertParcelStatus(t, id, parcel.StatusConfirmed)
	}
	v, _ := env.fleet.GetVehicle(ctx, env.vehicleID)
	if v.Status != fleet.VehicleOnTrip {
		t.Errorf("vehicle status = %s, want on-trip", v.Status)
	}
	if !env.track.open[tr.ID] {
		t.Error("tracking projection not created on accept")
	}

	if err := env.svc.MarkEnRoute(ctx, tr.ID); err != nil {
		t.Fatalf("mark en route: %v", err)
	}
	for _, id := range env.parcelIDs {
		env.assertParcelStatus(t, id, parcel.StatusInTransit)
	}

	for _, id := range env.parcelIDs {
		if _, err := env.svc.MarkDelivered(ctx, MarkDeliveredCommand{TripID: tr.ID, ParcelID: id}); err != nil {
			t.Fatalf("mark delivered: %v", err)
		}
	}
	if env.track.progress[tr.ID] != 100 {
		t.Errorf("tracked progress = %d, want 100", env.track.progress[tr.ID])
	}

	tr, err = env.svc.Complete(ctx, CompleteCommand{TripID: tr.ID})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if tr.Status != StatusCompleted {
		t.Fatalf("status after complete = %s, want completed", tr.Status)
	}
	env.assertDispatch(t, env.driverID, fleet.DispatchAvailable)
	for _, id := range env.parcelIDs {
		env.assertParcelStatus(t, id, parcel.StatusDelivered)
	}
	v, _ = env.fleet.GetVehicle(ctx, env.vehicleID)
	if v.Status != fleet.VehicleActive {
		t.Errorf("vehicle status after complete = %s, want active", v.Status)
	}
	if env.track.open[tr.ID] {
		t.Error("tracking projection not removed on complete")
	}
}

func TestCreateCapacityExceeded(t *testing.T) {
	env := setupTestEnv(t, 600, 600)

	_, err := env.svc.Create(context.Background(), CreateCommand{
		ParcelIDs: env.parcelIDs,
		DriverID:  env.driverID,
		VehicleID: env.vehicleID,
		Start:     types.Point{Lat: 25.033, Lng: 121.565},
	})
	if !errors.Is(err, ErrVehicleInsufficientCapacity) {
		t.Fatalf("expected ErrVehicleInsufficientCapacity, got %v", err)
	}
	// Nothing was claimed.
	env.assertDispatch(t, env.driverID, fleet.DispatchAvailable)
	for _, id := range env.parcelIDs {
		env.assertParcelStatus(t, id, parcel.StatusBooked)
	}
}

func TestCreateDriverNotPunchedIn(t *testing.T) {
	env := setupTestEnv(t, 100)
	ctx := context.Background()

	if err := env.fleet.SetAvailable(ctx, env.driverID, false); err != nil {
		t.Fatalf("punch out: %v", err)
	}
	_, err := env.svc.Create(ctx, CreateCommand{
		ParcelIDs: env.parcelIDs,
		DriverID:  env.driverID,
		VehicleID: env.vehicleID,
		Start:     types.Point{Lat: 25.033, Lng: 121.565},
	})
	if !errors.Is(err, ErrDriverUnavailable) {
		t.Fatalf("expected ErrDriverUnavailable, got %v", err)
	}
}

func TestCreateParcelAlreadyAssigned(t *testing.T) {
	env := setupTestEnv(t, 100)
	ctx := context.Background()

	env.mustCreate(t)

	second := env.addDriver(t, "second")
	_, err := env.svc.Create(ctx, CreateCommand{
		ParcelIDs: env.parcelIDs,
		DriverID:  second,
		VehicleID: env.vehicleID,
		Start:     types.Point{Lat: 25.033, Lng: 121.565},
	})
	if !errors.Is(err, ErrParcelAlreadyAssigned) {
		t.Fatalf("expected ErrParcelAlreadyAssigned, got %v", err)
	}
	env.assertDispatch(t, second, fleet.DispatchAvailable)
}

func TestVehicleDoubleBooking(t *testing.T) {
	env := setupTestEnv(t, 100)
	ctx := context.Background()

	env.mustCreate(t)

	second := env.addDriver(t, "second")
	other := &parcel.Parcel{ID: types.NewID(), WeightKg: 50, Status: parcel.StatusBooked, CreatedAt: time.Now()}
	if err := env.parcels.Create(ctx, other); err != nil {
		t.Fatalf("create parcel: %v", err)
	}

	_, err := env.svc.Create(ctx, CreateCommand{
		ParcelIDs: []types.ID{other.ID},
		DriverID:  second,
		VehicleID: env.vehicleID,
		Start:     types.Point{Lat: 25.033, Lng: 121.565},
	})
	if !errors.Is(err, ErrVehicleUnavailable) {
		t.Fatalf("expected ErrVehicleUnavailable, got %v", err)
	}
	// The loser's driver claim is unwound.
	env.assertDispatch(t, second, fleet.DispatchAvailable)
	env.assertParcelStatus(t, other.ID, parcel.StatusBooked)
}

func TestDeclineReleasesResources(t *testing.T) {
	env := setupTestEnv(t, 100, 200)
	ctx := context.Background()

	tr := env.mustCreate(t)
	tr, err := env.svc.Decline(ctx, DeclineCommand{TripID: tr.ID, DriverID: env.driverID})
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if tr.Status != StatusDeclined {
		t.Fatalf("status = %s, want declined", tr.Status)
	}
	env.assertDispatch(t, env.driverID, fleet.DispatchAvailable)
	for _, id := range env.parcelIDs {
		env.assertParcelStatus(t, id, parcel.StatusDeclined)
	}
	// Vehicle was never reserved, so it stays active.
	v, _ := env.fleet.GetVehicle(ctx, env.vehicleID)
	if v.Status != fleet.VehicleActive {
		t.Errorf("vehicle status = %s, want active", v.Status)
	}
	if env.notes.count("decline_escalated") != 1 {
		t.Errorf("decline_escalated notifications = %d, want 1", env.notes.count("decline_escalated"))
	}
}

func TestDeclineByWrongDriver(t *testing.T) {
	env := setupTestEnv(t, 100)
	tr := env.mustCreate(t)

	_, err := env.svc.Decline(context.Background(), DeclineCommand{TripID: tr.ID, DriverID: "someone-else"})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestCompleteBlockedWhileUndelivered(t *testing.T) {
	env := setupTestEnv(t, 100, 200)
	ctx := context.Background()

	tr := env.mustCreate(t)
	tr, err := env.svc.Accept(ctx, AcceptCommand{TripID: tr.ID, DriverID: env.driverID})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}

	if _, err := env.svc.MarkDelivered(ctx, MarkDeliveredCommand{TripID: tr.ID, ParcelID: env.parcelIDs[0]}); err != nil {
		t.Fatalf("mark delivered: %v", err)
	}
	if env.track.progress[tr.ID] != 50 {
		t.Errorf("tracked progress = %d, want 50", env.track.progress[tr.ID])
	}

	if _, err := env.svc.Complete(ctx, CompleteCommand{TripID: tr.ID}); !errors.Is(err, ErrIncompleteDelivery) {
		t.Fatalf("expected ErrIncompleteDelivery, got %v", err)
	}

	if _, err := env.svc.MarkDelivered(ctx, MarkDeliveredCommand{TripID: tr.ID, ParcelID: env.parcelIDs[1]}); err != nil {
		t.Fatalf("mark delivered: %v", err)
	}
	if _, err := env.svc.Complete(ctx, CompleteCommand{TripID: tr.ID}); err != nil {
		t.Fatalf("complete: %v", err)
	}
}

func TestMarkDeliveredIdempotent(t *testing.T) {
	env := setupTestEnv(t, 100)
	ctx := context.Background()

	tr := env.mustCreate(t)
	tr, err := env.svc.Accept(ctx, AcceptCommand{TripID: tr.ID, DriverID: env.driverID})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := env.svc.MarkDelivered(ctx, MarkDeliveredCommand{TripID: tr.ID, ParcelID: env.parcelIDs[0]}); err != nil {
		t.Fatalf("mark delivered: %v", err)
	}
	tr, err = env.svc.MarkDelivered(ctx, MarkDeliveredCommand{TripID: tr.ID, ParcelID: env.parcelIDs[0]})
	if err != nil {
		t.Fatalf("re-mark delivered: %v", err)
	}
	if tr.UndeliveredCount() != 0 {
		t.Errorf("undelivered = %d, want 0", tr.UndeliveredCount())
	}
	env.assertParcelStatus(t, env.parcelIDs[0], parcel.StatusDelivered)

	if _, err := env.svc.MarkDelivered(ctx, MarkDeliveredCommand{TripID: tr.ID, ParcelID: "unknown"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown parcel, got %v", err)
	}
}

func TestAcceptIdempotentSameDriver(t *testing.T) {
	env := setupTestEnv(t, 100)
	ctx := context.Background()

	tr := env.mustCreate(t)
	first, err := env.svc.Accept(ctx, AcceptCommand{TripID: tr.ID, DriverID: env.driverID})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	second, err := env.svc.Accept(ctx, AcceptCommand{TripID: tr.ID, DriverID: env.driverID})
	if err != nil {
		t.Fatalf("re-accept: %v", err)
	}
	if second.Status != first.Status || second.StatusVersion != first.StatusVersion {
		t.Errorf("re-accept changed state: %s v%d -> %s v%d",
			first.Status, first.StatusVersion, second.Status, second.StatusVersion)
	}
	if env.notes.count("offer_accepted") != 1 {
		t.Errorf("offer_accepted notifications = %d, want 1", env.notes.count("offer_accepted"))
	}
}

func TestConcurrentCreateSameDriver(t *testing.T) {
	env := setupTestEnv(t, 100)
	ctx := context.Background()

	// A second vehicle and parcel so both creates differ only in the driver.
	v2, err := env.fleet.RegisterVehicle(ctx, fleet.RegisterVehicleCommand{Plate: "KLB-1177", CapacityKg: 1000})
	if err != nil {
		t.Fatalf("register vehicle: %v", err)
	}
	p2 := &parcel.Parcel{ID: types.NewID(), WeightKg: 50, Status: parcel.StatusBooked, CreatedAt: time.Now()}
	if err := env.parcels.Create(ctx, p2); err != nil {
		t.Fatalf("create parcel: %v", err)
	}

	cmds := []CreateCommand{
		{ParcelIDs: env.parcelIDs, DriverID: env.driverID, VehicleID: env.vehicleID, Start: types.Point{Lat: 25.03, Lng: 121.56}},
		{ParcelIDs: []types.ID{p2.ID}, DriverID: env.driverID, VehicleID: v2.ID, Start: types.Point{Lat: 25.03, Lng: 121.56}},
	}

	errs := make(chan error, len(cmds))
	start := make(chan struct{})
	var wg sync.WaitGroup
	for _, cmd := range cmds {
		wg.Add(1)
		go func(cmd CreateCommand) {
			defer wg.Done()
			<-start
			_, err := env.svc.Create(ctx, cmd)
			errs <- err
		}(cmd)
	}
	close(start)
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, ErrDriverUnavailable) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly 1 successful assignment, got %d", success)
	}
	env.assertDispatch(t, env.driverID, fleet.DispatchPending)
}

func TestConcurrentAcceptDeclineSingleWinner(t *testing.T) {
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		env := setupTestEnv(t, 100)
		tr := env.mustCreate(t)

		errs := make(chan error, 2)
		start := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			_, err := env.svc.Accept(ctx, AcceptCommand{TripID: tr.ID, DriverID: env.driverID})
			errs <- err
		}()
		go func() {
			defer wg.Done()
			<-start
			_, err := env.svc.Decline(ctx, DeclineCommand{TripID: tr.ID, DriverID: env.driverID})
			errs <- err
		}()
		close(start)
		wg.Wait()
		close(errs)

		success := 0
		for err := range errs {
			if err == nil {
				success++
				continue
			}
			if !errors.Is(err, ErrConflict) && !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("iteration %d: loser got unexpected error: %v", i, err)
			}
		}
		if success != 1 {
			t.Fatalf("iteration %d: expected exactly 1 winner, got %d", i, success)
		}

		got, err := env.store.Get(ctx, tr.ID)
		if err != nil {
			t.Fatalf("iteration %d: get trip: %v", i, err)
		}
		switch got.Status {
		case StatusInProgress:
			env.assertDispatch(t, env.driverID, fleet.DispatchOnTrip)
			env.assertParcelStatus(t, env.parcelIDs[0], parcel.StatusConfirmed)
		case StatusDeclined:
			env.assertDispatch(t, env.driverID, fleet.DispatchAvailable)
			env.assertParcelStatus(t, env.parcelIDs[0], parcel.StatusDeclined)
			v, err := env.fleet.GetVehicle(ctx, env.vehicleID)
			if err != nil {
				t.Fatalf("iteration %d: get vehicle: %v", i, err)
			}
			if v.Status != fleet.VehicleActive {
				t.Fatalf("iteration %d: vehicle not released after losing accept, status %s", i, v.Status)
			}
		default:
			t.Fatalf("iteration %d: trip settled in %s, want in_progress or declined", i, got.Status)
		}
	}
}

func TestReofferAfterDecline(t *testing.T) {
	env := setupTestEnv(t, 100, 200)
	ctx := context.Background()

	tr := env.mustCreate(t)
	if _, err := env.svc.Decline(ctx, DeclineCommand{TripID: tr.ID, DriverID: env.driverID}); err != nil {
		t.Fatalf("decline: %v", err)
	}

	replacement := env.addDriver(t, "replacement")
	tr, err := env.svc.Reoffer(ctx, tr.ID, replacement)
	if err != nil {
		t.Fatalf("reoffer: %v", err)
	}
	if tr.Status != StatusPending {
		t.Fatalf("status = %s, want pending", tr.Status)
	}
	if tr.DriverID != replacement {
		t.Errorf("driver = %s, want %s", tr.DriverID, replacement)
	}
	if tr.VehicleID != env.vehicleID {
		t.Errorf("vehicle changed on reoffer: %s", tr.VehicleID)
	}
	for _, id := range env.parcelIDs {
		env.assertParcelStatus(t, id, parcel.StatusPending)
	}

	// The replacement can run the trip to completion.
	if _, err := env.svc.Accept(ctx, AcceptCommand{TripID: tr.ID, DriverID: replacement}); err != nil {
		t.Fatalf("accept after reoffer: %v", err)
	}
	for _, id := range env.parcelIDs {
		if _, err := env.svc.MarkDelivered(ctx, MarkDeliveredCommand{TripID: tr.ID, ParcelID: id}); err != nil {
			t.Fatalf("mark delivered: %v", err)
		}
	}
	if _, err := env.svc.Complete(ctx, CompleteCommand{TripID: tr.ID}); err != nil {
		t.Fatalf("complete after reoffer: %v", err)
	}
}

func TestUpdateResourcesDriverSwap(t *testing.T) {
	env := setupTestEnv(t, 100)
	ctx := context.Background()

	tr := env.mustCreate(t)
	replacement := env.addDriver(t, "swap")

	tr, err := env.svc.UpdateResources(ctx, UpdateResourcesCommand{TripID: tr.ID, DriverID: replacement})
	if err != nil {
		t.Fatalf("update resources: %v", err)
	}
	if tr.DriverID != replacement {
		t.Errorf("driver = %s, want %s", tr.DriverID, replacement)
	}
	env.assertDispatch(t, env.driverID, fleet.DispatchAvailable)
	env.assertDispatch(t, replacement, fleet.DispatchPending)
	// Fresh offer for the new driver.
	if env.notes.count("offer_created") != 2 {
		t.Errorf("offer_created notifications = %d, want 2", env.notes.count("offer_created"))
	}

	// The old driver can no longer accept.
	if _, err := env.svc.Accept(ctx, AcceptCommand{TripID: tr.ID, DriverID: env.driverID}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for old driver, got %v", err)
	}
}

func TestUpdateResourcesAfterAcceptRejected(t *testing.T) {
	env := setupTestEnv(t, 100)
	ctx := context.Background()

	tr := env.mustCreate(t)
	if _, err := env.svc.Accept(ctx, AcceptCommand{TripID: tr.ID, DriverID: env.driverID}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	replacement := env.addDriver(t, "late")
	if _, err := env.svc.UpdateResources(ctx, UpdateResourcesCommand{TripID: tr.ID, DriverID: replacement}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestToggleSOS(t *testing.T) {
	env := setupTestEnv(t, 100)
	ctx := context.Background()

	tr := env.mustCreate(t)
	// Pending trip is not live yet; raising is rejected.
	if _, err := env.svc.ToggleSOS(ctx, SOSCommand{TripID: tr.ID, Active: true}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for pending trip, got %v", err)
	}

	if _, err := env.svc.Accept(ctx, AcceptCommand{TripID: tr.ID, DriverID: env.driverID}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	pos := &types.Point{Lat: 25.05, Lng: 121.55}
	tr, err := env.svc.ToggleSOS(ctx, SOSCommand{TripID: tr.ID, Active: true, Position: pos})
	if err != nil {
		t.Fatalf("raise sos: %v", err)
	}
	if !tr.SOS {
		t.Fatal("sos flag not set")
	}
	if !env.track.sos[tr.ID] {
		t.Error("sos not mirrored to tracker")
	}

	// SOS never blocks lifecycle progress.
	if _, err := env.svc.MarkDelivered(ctx, MarkDeliveredCommand{TripID: tr.ID, ParcelID: env.parcelIDs[0]}); err != nil {
		t.Fatalf("mark delivered with sos active: %v", err)
	}
	if _, err := env.svc.Complete(ctx, CompleteCommand{TripID: tr.ID}); err != nil {
		t.Fatalf("complete with sos active: %v", err)
	}

	// Clearing is allowed even after the trip closed.
	tr, err = env.svc.ToggleSOS(ctx, SOSCommand{TripID: tr.ID, Active: false})
	if err != nil {
		t.Fatalf("clear sos: %v", err)
	}
	if tr.SOS {
		t.Error("sos flag still set after clear")
	}
}

func TestStateEventsRecorded(t *testing.T) {
	env := setupTestEnv(t, 100)
	ctx := context.Background()

	tr := env.mustCreate(t)
	if _, err := env.svc.Accept(ctx, AcceptCommand{TripID: tr.ID, DriverID: env.driverID}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := env.svc.MarkDelivered(ctx, MarkDeliveredCommand{TripID: tr.ID, ParcelID: env.parcelIDs[0]}); err != nil {
		t.Fatalf("mark delivered: %v", err)
	}
	if _, err := env.svc.Complete(ctx, CompleteCommand{TripID: tr.ID}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	var got []Status
	for _, e := range env.store.Events() {
		got = append(got, e.ToStatus)
	}
	want := []Status{StatusPending, StatusAccepted, StatusInProgress, StatusCompleted}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
}
