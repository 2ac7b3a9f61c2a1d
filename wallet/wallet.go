package wallet

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/YasiruR/didcomm-engine/core/did"
	"github.com/YasiruR/didcomm-engine/domain"
	"github.com/YasiruR/didcomm-engine/domain/messages"
	"github.com/YasiruR/didcomm-engine/domain/models"
	"github.com/YasiruR/didcomm-engine/domain/services"
	"github.com/YasiruR/didcomm-engine/wallet/stores"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/tryfix/log"
)

const (
	bucketKeys        = `keys`
	bucketDids        = `dids`
	bucketConnections = `connections`
	bucketInvitations = `invitations`
)

type Config struct {
	ID          string
	Label       string
	Endpoint    string
	RoutingKeys []string
}

type didRecord struct {
	Did models.Did           `json:"did"`
	Doc messages.DIDDocument `json:"doc"`
}

// Wallet is the aggregate of keys, dids, connections and invitations owned by
// an agent. Records are written through to the store.
type Wallet struct {
	cfg         Config
	km          services.KeyManager
	didUtils    services.DIDUtils
	store       stores.Store
	dids        map[string]models.Did
	connections map[string]models.Connection
	invitations map[string]models.Invitation
	log         log.Logger
	*sync.RWMutex
}

func New(cfg Config, km services.KeyManager, du services.DIDUtils, store stores.Store, logger log.Logger) (*Wallet, error) {
	if cfg.ID == `` {
		cfg.ID = uuid.New().String()
	}

	w := &Wallet{
		cfg:         cfg,
		km:          km,
		didUtils:    du,
		store:       store,
		dids:        map[string]models.Did{},
		connections: map[string]models.Connection{},
		invitations: map[string]models.Invitation{},
		log:         logger,
		RWMutex:     &sync.RWMutex{},
	}

	if err := w.load(); err != nil {
		return nil, fmt.Errorf(`loading wallet %s failed - %w`, cfg.ID, err)
	}

	return w, nil
}

func (w *Wallet) load() error {
	seeds, err := w.store.List(w.bucket(bucketKeys))
	if err != nil {
		return err
	}
	for _, seed := range seeds {
		if _, err = w.km.ImportSeed(seed); err != nil {
			return err
		}
	}

	records, err := w.store.List(w.bucket(bucketDids))
	if err != nil {
		return err
	}
	for _, byts := range records {
		var rec didRecord
		if err = json.Unmarshal(byts, &rec); err != nil {
			return fmt.Errorf(`unmarshalling did record failed - %v: %w`, err, domain.ErrWallet)
		}
		w.dids[rec.Did.URI] = rec.Did
		w.didUtils.Store(rec.Doc)
	}

	if err = loadRecords(w.store, w.bucket(bucketConnections), func(c models.Connection) { w.connections[c.ID] = c }); err != nil {
		return err
	}

	if err = loadRecords(w.store, w.bucket(bucketInvitations), func(inv models.Invitation) { w.invitations[inv.ID] = inv }); err != nil {
		return err
	}

	w.log.Debug(fmt.Sprintf(`wallet %s loaded with %d dids, %d connections and %d invitations`,
		w.cfg.ID, len(w.dids), len(w.connections), len(w.invitations)))
	return nil
}

func loadRecords[T any](s stores.Store, bucket string, add func(T)) error {
	records, err := s.List(bucket)
	if err != nil {
		return err
	}

	for _, byts := range records {
		var rec T
		if err = json.Unmarshal(byts, &rec); err != nil {
			return fmt.Errorf(`unmarshalling %s record failed - %v: %w`, bucket, err, domain.ErrWallet)
		}
		add(rec)
	}
	return nil
}

func (w *Wallet) ID() string {
	return w.cfg.ID
}

func (w *Wallet) Label() string {
	return w.cfg.Label
}

func (w *Wallet) Endpoint() string {
	return w.cfg.Endpoint
}

func (w *Wallet) RoutingKeys() []string {
	return w.cfg.RoutingKeys
}

func (w *Wallet) Keys() services.KeyStore {
	return w.km
}

func (w *Wallet) CreateKey() (models.KeyPair, error) {
	w.Lock()
	defer w.Unlock()
	return w.createKey()
}

func (w *Wallet) createKey() (models.KeyPair, error) {
	kp, err := w.km.CreateKey()
	if err != nil {
		return models.KeyPair{}, fmt.Errorf(`%v: %w`, err, domain.ErrWallet)
	}

	if err = w.store.Put(w.bucket(bucketKeys), kp.Verkey, kp.Private.Seed()); err != nil {
		w.km.DeleteKey(kp.Verkey)
		return models.KeyPair{}, err
	}
	return kp, nil
}

// CreateDID generates a fresh key and a did of the given method whose doc
// points to the wallet endpoint
func (w *Wallet) CreateDID(method models.DIDMethod) (models.Did, messages.DIDDocument, error) {
	w.Lock()
	defer w.Unlock()

	kp, err := w.createKey()
	if err != nil {
		return models.Did{}, messages.DIDDocument{}, fmt.Errorf(`creating key failed - %w`, err)
	}

	doc := w.didUtils.CreateDIDDoc([]models.Service{{
		Id:          uuid.New().String(),
		Type:        domain.ServcDIDComm,
		Endpoint:    w.cfg.Endpoint,
		Verkey:      kp.Verkey,
		RoutingKeys: w.cfg.RoutingKeys,
	}})

	var uri string
	switch method {
	case models.MethodPeer:
		uri, err = w.didUtils.CreatePeerDID(doc)
	case models.MethodKey:
		uri, err = did.DIDKey(kp.Verkey)
	default:
		err = fmt.Errorf(`unsupported did method %s`, method)
	}
	if err != nil {
		return models.Did{}, messages.DIDDocument{}, fmt.Errorf(`creating did failed - %v: %w`, err, domain.ErrWallet)
	}
	doc.Id = uri

	d := models.Did{
		URI:         uri,
		Method:      method,
		Verkey:      kp.Verkey,
		KeyRef:      kp.Verkey,
		Endpoint:    w.cfg.Endpoint,
		RoutingKeys: w.cfg.RoutingKeys,
	}

	if err = w.put(bucketDids, uri, didRecord{Did: d, Doc: doc}); err != nil {
		return models.Did{}, messages.DIDDocument{}, err
	}

	w.dids[uri] = d
	w.didUtils.Store(doc)
	return d, doc, nil
}

func (w *Wallet) Did(uri string) (models.Did, error) {
	w.RLock()
	defer w.RUnlock()

	d, ok := w.dids[uri]
	if !ok {
		return models.Did{}, fmt.Errorf(`did %s - %w`, uri, domain.ErrRecordNotFound)
	}
	return d, nil
}

func (w *Wallet) SaveConnection(c models.Connection) error {
	w.Lock()
	defer w.Unlock()

	if c.ID == `` {
		c.ID = uuid.New().String()
	}
	return w.commitConnection(c)
}

func (w *Wallet) UpdateConnection(id string, fn func(c *models.Connection) error) (models.Connection, error) {
	w.Lock()
	defer w.Unlock()

	current, ok := w.connections[id]
	if !ok {
		return models.Connection{}, fmt.Errorf(`connection %s - %w`, id, domain.ErrRecordNotFound)
	}

	next := current
	next.TheirRoutingKeys = append([]string(nil), current.TheirRoutingKeys...)
	if err := fn(&next); err != nil {
		return current, err
	}

	if err := w.commitConnection(next); err != nil {
		return current, err
	}
	return w.connections[id], nil
}

// commitConnection must be called with the write lock held
func (w *Wallet) commitConnection(c models.Connection) error {
	if c.State == models.ConnActive && c.TheirDid != `` {
		_, dup := lo.Find(lo.Values(w.connections), func(other models.Connection) bool {
			return other.ID != c.ID && other.State == models.ConnActive && other.MyDid == c.MyDid && other.TheirDid == c.TheirDid
		})
		if dup {
			return fmt.Errorf(`an active connection between %s and %s already exists - %w`, c.MyDid, c.TheirDid, domain.ErrInvalidConnectionState)
		}
	}

	c.UpdatedAt = time.Now()
	if err := w.put(bucketConnections, c.ID, c); err != nil {
		return err
	}

	w.connections[c.ID] = c
	return nil
}

// DeleteConnection removes a connection whose first message could not be
// delivered. Connections past the request state are kept.
func (w *Wallet) DeleteConnection(id string) error {
	w.Lock()
	defer w.Unlock()

	c, ok := w.connections[id]
	if !ok {
		return fmt.Errorf(`connection %s - %w`, id, domain.ErrRecordNotFound)
	}

	if c.State != models.ConnInvitation && c.State != models.ConnRequest && !(c.Role == models.RoleInviter && c.State == models.ConnResponse) {
		return fmt.Errorf(`connection %s in state %s cannot be removed - %w`, id, c.State, domain.ErrInvalidConnectionState)
	}

	if err := w.store.Delete(w.bucket(bucketConnections), id); err != nil {
		return err
	}
	delete(w.connections, id)
	return nil
}

func (w *Wallet) Connection(id string) (models.Connection, error) {
	w.RLock()
	defer w.RUnlock()

	c, ok := w.connections[id]
	if !ok {
		return models.Connection{}, fmt.Errorf(`connection %s - %w`, id, domain.ErrRecordNotFound)
	}
	return c, nil
}

func (w *Wallet) ConnectionByThread(thid string) (models.Connection, error) {
	return w.findConnection(func(c models.Connection) bool { return c.ThreadID == thid }, `thread `+thid)
}

func (w *Wallet) ConnectionByVerkey(myVerkey string) (models.Connection, error) {
	return w.findConnection(func(c models.Connection) bool { return c.MyVerkey == myVerkey }, `verkey `+myVerkey)
}

func (w *Wallet) findConnection(match func(c models.Connection) bool, desc string) (models.Connection, error) {
	w.RLock()
	defer w.RUnlock()

	c, ok := lo.Find(lo.Values(w.connections), match)
	if !ok {
		return models.Connection{}, fmt.Errorf(`connection for %s - %w`, desc, domain.ErrRecordNotFound)
	}
	return c, nil
}

func (w *Wallet) Connections() []models.Connection {
	w.RLock()
	defer w.RUnlock()

	conns := lo.Values(w.connections)
	sort.Slice(conns, func(i, j int) bool { return conns[i].UpdatedAt.Before(conns[j].UpdatedAt) })
	return conns
}

func (w *Wallet) SaveInvitation(inv models.Invitation) error {
	w.Lock()
	defer w.Unlock()

	if _, ok := w.invitations[inv.ID]; ok {
		return fmt.Errorf(`invitation %s already exists - %w`, inv.ID, domain.ErrWallet)
	}

	if err := w.put(bucketInvitations, inv.ID, inv); err != nil {
		return err
	}
	w.invitations[inv.ID] = inv
	return nil
}

func (w *Wallet) UpdateInvitation(id string, fn func(inv *models.Invitation) error) (models.Invitation, error) {
	w.Lock()
	defer w.Unlock()

	current, ok := w.invitations[id]
	if !ok {
		return models.Invitation{}, fmt.Errorf(`invitation %s - %w`, id, domain.ErrUnknownInvitation)
	}

	next := current
	next.UsedBy = append([]string(nil), current.UsedBy...)
	if err := fn(&next); err != nil {
		return current, err
	}

	if err := w.put(bucketInvitations, id, next); err != nil {
		return current, err
	}
	w.invitations[id] = next
	return next, nil
}

func (w *Wallet) Invitation(id string) (models.Invitation, error) {
	w.RLock()
	defer w.RUnlock()

	inv, ok := w.invitations[id]
	if !ok {
		return models.Invitation{}, fmt.Errorf(`invitation %s - %w`, id, domain.ErrUnknownInvitation)
	}
	return inv, nil
}

func (w *Wallet) Invitations() []models.Invitation {
	w.RLock()
	defer w.RUnlock()

	invs := lo.Values(w.invitations)
	sort.Slice(invs, func(i, j int) bool { return invs[i].CreatedAt.Before(invs[j].CreatedAt) })
	return invs
}

func (w *Wallet) Close() error {
	return w.store.Close()
}

func (w *Wallet) put(bucket, key string, val interface{}) error {
	byts, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf(`marshalling %s record failed - %v: %w`, bucket, err, domain.ErrWallet)
	}
	return w.store.Put(w.bucket(bucket), key, byts)
}

func (w *Wallet) bucket(name string) string {
	return w.cfg.ID + `.` + name
}
