package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/YasiruR/didcomm-engine/core/message"
	"github.com/YasiruR/didcomm-engine/domain"
	"github.com/YasiruR/didcomm-engine/domain/container"
	"github.com/YasiruR/didcomm-engine/domain/messages"
	"github.com/YasiruR/didcomm-engine/domain/models"
	"github.com/YasiruR/didcomm-engine/domain/services"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

// Subscriber streams the events of a topic
type Subscriber interface {
	Subscribe(topic string) (<-chan models.Event, func())
}

var (
	info   = color.New(color.FgCyan)
	failed = color.New(color.FgRed)
	notice = color.New(color.BgBlack, color.FgGreen)
)

type runner struct {
	c       *container.Container
	agent   services.Agent
	reader  *bufio.Reader
	out     io.Writer
	disCmds uint64 // flag to identify whether output cursor is on basic commands or not
}

// Init prints the agent details and runs the command prompt until the agent
// is stopped
func Init(c *container.Container, agent services.Agent, events Subscriber) {
	r := &runner{c: c, agent: agent, reader: bufio.NewReader(os.Stdin), out: os.Stdout}
	fmt.Fprintf(r.out, "-> Agent initialized with following attributes: \n\t- Name: %s\n\t- Endpoint: %s\n", c.Cfg.Label, c.Cfg.Endpoint())

	if events != nil {
		go r.listen(events)
	}
	r.basicCommands()
}

func (r *runner) basicCommands() {
	for {
		fmt.Fprintf(r.out, "\n-> Enter the corresponding number of a command to proceed;\n"+
			"\t[1] Generate invitation\n\t[2] Accept invitation\n\t[3] Show connections\n"+
			"\t[4] Send a message\n\t[5] Ping\n\t[6] Discover features\n"+
			"\t[7] Offer a credential\n\t[8] Request a proof\n\t[9] Exit\n   Command: ")
		atomic.StoreUint64(&r.disCmds, 1)

		cmd, err := r.reader.ReadString('\n')
		atomic.StoreUint64(&r.disCmds, 0)
		if err != nil {
			if err == io.EOF {
				return
			}
			r.error(`reading command number failed, please try again`)
			continue
		}

		switch strings.TrimSpace(cmd) {
		case `1`:
			r.generateInvitation()
		case `2`:
			r.acceptInvitation()
		case `3`:
			r.showConnections()
		case `4`:
			r.sendMsg()
		case `5`:
			r.ping()
		case `6`:
			r.discover()
		case `7`:
			r.offerCredential()
		case `8`:
			r.requestProof()
		case `9`:
			if err = r.c.Stop(); err != nil {
				r.error(err.Error())
			}
			return
		default:
			r.error(`invalid command number, please try again`)
		}
	}
}

func (r *runner) generateInvitation() {
	inv, err := r.agent.Invite(context.Background(), models.InviteOptions{Label: r.c.Cfg.Label})
	if err != nil {
		r.error(fmt.Sprintf(`generating invitation failed - %v`, err))
		return
	}

	fmt.Fprintf(r.out, "-> Invitation URL: %s\n", info.Sprint(inv.URL))
}

func (r *runner) acceptInvitation() {
	rawURL := r.read(`Provide invitation URL`)
	if rawURL == `` {
		return
	}

	conn, err := r.agent.Accept(context.Background(), rawURL)
	if err != nil {
		r.error(fmt.Sprintf(`accepting invitation failed - %v`, err))
		return
	}
	fmt.Fprintf(r.out, "-> Connected with %s {id: %s}\n", conn.TheirLabel, info.Sprint(conn.ID))
}

func (r *runner) showConnections() {
	conns := r.agent.Connections()
	table := tablewriter.NewWriter(r.out)
	table.SetHeader([]string{`#`, `ID`, `Label`, `State`, `Role`, `Their DID`, `Updated`})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for i, c := range conns {
		table.Append([]string{strconv.Itoa(i + 1), c.ID, c.TheirLabel, string(c.State), string(c.Role), c.TheirDid, c.UpdatedAt.Format(`15:04:05`)})
	}
	table.Render()
}

func (r *runner) sendMsg() {
	connID, ok := r.connection()
	if !ok {
		return
	}

	msg := r.read(`Enter message`)
	if err := r.agent.SendMessage(context.Background(), connID, msg); err != nil {
		r.error(fmt.Sprintf(`sending message failed - %v`, err))
		return
	}
	fmt.Fprintln(r.out, `-> Message sent`)
}

func (r *runner) ping() {
	connID, ok := r.connection()
	if !ok {
		return
	}

	latency, err := r.agent.Ping(context.Background(), connID)
	if err != nil {
		r.error(fmt.Sprintf(`ping failed - %v`, err))
		return
	}
	fmt.Fprintf(r.out, "-> Ping response received in %s\n", info.Sprint(latency))
}

func (r *runner) discover() {
	connID, ok := r.connection()
	if !ok {
		return
	}

	features, err := r.agent.Query(context.Background(), connID, r.read(`Query (empty for all)`))
	if err != nil {
		r.error(fmt.Sprintf(`discovering features failed - %v`, err))
		return
	}

	table := tablewriter.NewWriter(r.out)
	table.SetHeader([]string{`Protocol`, `Roles`})
	table.SetAutoWrapText(false)
	for _, f := range features {
		table.Append([]string{f.Id, strings.Join(f.Roles, `, `)})
	}
	table.Render()
}

func (r *runner) offerCredential() {
	connID, ok := r.connection()
	if !ok {
		return
	}

	attrs, err := ParseAttributes(r.read(`Attributes (name=value, ...)`))
	if err != nil {
		r.error(err.Error())
		return
	}

	if err = r.agent.OfferCredential(context.Background(), connID, attrs); err != nil {
		r.error(fmt.Sprintf(`issuing credential failed - %v`, err))
		return
	}
	fmt.Fprintln(r.out, `-> Credential issued and acknowledged`)
}

func (r *runner) requestProof() {
	connID, ok := r.connection()
	if !ok {
		return
	}

	names := lo.Compact(lo.Map(strings.Split(r.read(`Attribute names (name, ...)`), `,`), func(s string, _ int) string {
		return strings.TrimSpace(s)
	}))

	revealed, err := r.agent.RequestProof(context.Background(), connID, names)
	if err != nil {
		r.error(fmt.Sprintf(`requesting proof failed - %v`, err))
		return
	}

	table := tablewriter.NewWriter(r.out)
	table.SetHeader([]string{`Attribute`, `Value`})
	for _, name := range names {
		table.Append([]string{name, revealed[name]})
	}
	table.Render()
}

// connection reads a connection id or its number in the connection table
func (r *runner) connection() (string, bool) {
	in := r.read(`Connection (id or #)`)
	if in == `` {
		return ``, false
	}

	if i, err := strconv.Atoi(in); err == nil {
		conns := r.agent.Connections()
		if i < 1 || i > len(conns) {
			r.error(fmt.Sprintf(`no connection numbered %d`, i))
			return ``, false
		}
		return conns[i-1].ID, true
	}
	return in, true
}

func (r *runner) read(prompt string) string {
	fmt.Fprintf(r.out, "-> %s: ", prompt)
	text, err := r.reader.ReadString('\n')
	if err != nil && text == `` {
		r.error(`reading input failed`)
		return ``
	}
	return strings.TrimSpace(text)
}

func (r *runner) error(text string) {
	fmt.Fprintf(r.out, "   %s %s\n", failed.Sprint(`Error:`), text)
}

func (r *runner) listen(events Subscriber) {
	msgs, cancel := events.Subscribe(domain.TopicBasicMessages)
	defer cancel()
	conns, cancelConns := events.Subscribe(domain.TopicConnections)
	defer cancelConns()

	for {
		var text string
		select {
		case e, ok := <-msgs:
			if !ok {
				return
			}
			rec, _ := e.Payload.(message.Received)
			text = fmt.Sprintf(`Message received on %s: %s`, rec.ConnectionID, rec.Content)
		case e, ok := <-conns:
			if !ok {
				return
			}
			c, _ := e.Payload.(models.Connection)
			if c.State != models.ConnActive {
				continue
			}
			text = fmt.Sprintf(`Connection %s with %s is active`, c.ID, c.TheirLabel)
		case <-r.c.Done():
			return
		}

		if atomic.LoadUint64(&r.disCmds) == 1 {
			fmt.Fprintln(r.out)
		}
		fmt.Fprintf(r.out, "-> %s\n", notice.Sprint(text))
	}
}

// ParseAttributes reads credential attributes given as name=value pairs
// separated by commas
func ParseAttributes(in string) ([]messages.Attribute, error) {
	var attrs []messages.Attribute
	for _, pair := range strings.Split(in, `,`) {
		if strings.TrimSpace(pair) == `` {
			continue
		}

		name, value, ok := strings.Cut(pair, `=`)
		if !ok || strings.TrimSpace(name) == `` {
			return nil, fmt.Errorf(`attribute '%s' is not a name=value pair - %w`, strings.TrimSpace(pair), domain.ErrValidation)
		}
		attrs = append(attrs, messages.Attribute{Name: strings.TrimSpace(name), Value: strings.TrimSpace(value)})
	}

	if len(attrs) == 0 {
		return nil, fmt.Errorf(`no attributes given - %w`, domain.ErrValidation)
	}
	return attrs, nil
}
