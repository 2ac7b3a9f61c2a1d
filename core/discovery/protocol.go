package discovery

import (
	"context"
	"fmt"
	"strings"

	"github.com/YasiruR/didcomm-engine/core/connection"
	"github.com/YasiruR/didcomm-engine/domain"
	"github.com/YasiruR/didcomm-engine/domain/messages"
	"github.com/YasiruR/didcomm-engine/domain/models"
	"github.com/YasiruR/didcomm-engine/exchange"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/tryfix/log"
)

const (
	roleRequester = `requester`
	roleResponder = `responder`
	wildcard      = `*`
)

var (
	QueryKey    = exchange.NewKey[messages.QueryFeature](`discovery_query`)
	FeaturesKey = exchange.NewKey[[]messages.Feature](`disclosed_features`)
)

// Discoverer discloses the protocols registered in the engine
type Discoverer struct {
	protocols *exchange.Protocols
}

func NewDiscoverer(ps *exchange.Protocols) *Discoverer {
	return &Discoverer{protocols: ps}
}

// Features only performs a soft validation against the query. A wildcard is
// only supported at the end of the query.
func (d *Discoverer) Features(query string) []messages.Feature {
	features := d.protocols.Features()
	query = messages.NormalizeType(strings.TrimSpace(query))

	switch {
	case query == `` || query == wildcard:
		return features
	case strings.HasSuffix(query, wildcard):
		prefix := strings.TrimSuffix(query, wildcard)
		return lo.Filter(features, func(f messages.Feature, _ int) bool {
			return strings.HasPrefix(f.Id, prefix)
		})
	default:
		return lo.Filter(features, func(f messages.Feature, _ int) bool {
			return f.Id == query
		})
	}
}

// Protocol implements discover features 1.0 (RFC-0031). Queries are
// answered with the protocols of the engine running the exchange.
type Protocol struct {
	log log.Logger
}

func New(logger log.Logger) *Protocol {
	return &Protocol{log: logger}
}

func (p *Protocol) ID() string {
	return messages.ProtocolDiscovery
}

func (p *Protocol) Roles() []string {
	return []string{roleRequester, roleResponder}
}

// Query sends a feature query over the active connection of the exchange
func (p *Protocol) Query(query, comment string) exchange.Action {
	return exchange.Action{Protocol: messages.ProtocolDiscovery, Name: `query features`, Run: func(ctx context.Context, ex *exchange.Exchange) error {
		conn, err := connection.Active(ex)
		if err != nil {
			return err
		}

		q := messages.QueryFeature{
			Type:    messages.DiscoverFeatQuery,
			Id:      uuid.New().String(),
			Query:   query,
			Comment: comment,
		}

		if _, err = connection.Send(ctx, ex, conn, q); err != nil {
			return err
		}

		ex.Attach(QueryKey.Bind(q))
		return nil
	}}
}

// AwaitDisclose blocks until the features of the last query are disclosed
func (p *Protocol) AwaitDisclose() exchange.Action {
	return exchange.Action{Protocol: messages.ProtocolDiscovery, Name: `await disclose`, Run: func(ctx context.Context, ex *exchange.Exchange) error {
		q, ok := QueryKey.From(ex)
		if !ok {
			return fmt.Errorf(`no query sent on exchange %s - %w`, ex.ID(), domain.ErrValidation)
		}

		msg, err := ex.Await(ctx, exchange.ByThread(messages.DiscoverFeatDisclose, q.Id))
		if err != nil {
			return err
		}

		var dm messages.DiscloseFeature
		if err = msg.Decode(&dm); err != nil {
			return err
		}

		ex.Attach(FeaturesKey.Bind(dm.Protocols))
		return nil
	}}
}

func (p *Protocol) HandleInbound(ctx context.Context, ex *exchange.Exchange, msg models.EndpointMessage) error {
	conn, err := connection.Inbound(ex, msg)
	if err != nil {
		return err
	}

	switch msg.Type {
	case messages.DiscoverFeatQuery:
		var q messages.QueryFeature
		if err = msg.Decode(&q); err != nil {
			return err
		}

		// an empty disclose is sent rather than rejecting the query
		_, err = connection.Send(ctx, ex, conn, messages.DiscloseFeature{
			Type:      messages.DiscoverFeatDisclose,
			Id:        uuid.New().String(),
			Thread:    messages.Thread{ThId: q.Id},
			Protocols: NewDiscoverer(ex.Engine().Protocols()).Features(q.Query),
		})
		if err != nil {
			return err
		}
		p.log.Debug(fmt.Sprintf(`features for '%s' disclosed to %s`, q.Query, conn.TheirLabel))
		return nil
	case messages.DiscoverFeatDisclose:
		if _, ok := ex.Find(func(m models.EndpointMessage) bool {
			return m.Direction == models.Outbound && m.Type == messages.DiscoverFeatQuery && m.ID == msg.ThreadID
		}); !ok {
			return fmt.Errorf(`disclose %s for an unknown query - %w`, msg.ID, domain.ErrValidation)
		}
		return nil
	default:
		return fmt.Errorf(`%s - %w`, msg.Type, domain.ErrUnsupportedMessageType)
	}
}
