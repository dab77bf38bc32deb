package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/drpcorg/objgraph"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HelpNew    = errors.New("new <value>")
	HelpLink   = errors.New("link <from> <to>")
	HelpUnlink = errors.New("unlink <from> <to>")
	HelpID     = errors.New("<command> <id>")
)

const helpText = `new <value>        create a node held by the shell
link <from> <to>   add a reference from one node to another
unlink <from> <to> drop a reference
drop <id>          release the shell's handle
save <id>          store the node and everything it reaches
unload <id>        turn the shell's handle into a placeholder
load <id>          load a node, or resolve the shell's placeholder
show <id>          print a resident node
list               print every resident node
stats              print object counters
exit               leave
`

// Shell runs commands against one domain. The handles it holds keep
// their objects alive, everything else lives as long as references
// from other nodes do.
type Shell struct {
	dom     *objgraph.Domain
	held    map[objgraph.ObjID]objgraph.Ptr[*Node]
	metrics *prometheus.Registry
	out     io.Writer
}

func NewShell(dom *objgraph.Domain, out io.Writer) *Shell {
	metrics := prometheus.NewRegistry()
	metrics.MustRegister(objgraph.Collectors()...)
	return &Shell{
		dom:     dom,
		held:    make(map[objgraph.ObjID]objgraph.Ptr[*Node]),
		metrics: metrics,
		out:     out,
	}
}

// Register adds an extra collector to the stats output.
func (sh *Shell) Register(c prometheus.Collector) error {
	return sh.metrics.Register(c)
}

// Close releases every held handle.
func (sh *Shell) Close() {
	for id, h := range sh.held {
		h.Release()
		delete(sh.held, id)
	}
}

// Exec runs one command line; exit yields io.EOF.
func (sh *Shell) Exec(line string) error {
	args := strings.Fields(line)
	if len(args) == 0 {
		return nil
	}
	cmd, args := args[0], args[1:]
	switch cmd {
	case "new":
		return sh.CommandNew(args)
	case "link":
		return sh.CommandLink(args)
	case "unlink":
		return sh.CommandUnlink(args)
	case "drop":
		return sh.withID(args, sh.CommandDrop)
	case "save":
		return sh.withID(args, sh.CommandSave)
	case "unload":
		return sh.withID(args, sh.CommandUnload)
	case "load":
		return sh.withID(args, sh.CommandLoad)
	case "show", "cat":
		return sh.withID(args, sh.CommandShow)
	case "list", "ls":
		return sh.CommandList()
	case "stats":
		return sh.CommandStats()
	case "help":
		_, _ = io.WriteString(sh.out, helpText)
		return nil
	case "exit", "quit":
		return io.EOF
	default:
		return fmt.Errorf("command unknown: %s", cmd)
	}
}

func parseID(s string) (objgraph.ObjID, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil || n == 0 {
		return objgraph.NoID, fmt.Errorf("bad object id %q", s)
	}
	return objgraph.ObjID(n), nil
}

func (sh *Shell) withID(args []string, fn func(id objgraph.ObjID) error) error {
	if len(args) != 1 {
		return HelpID
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return fn(id)
}

func (sh *Shell) resident(id objgraph.ObjID) (*Node, error) {
	n, ok := sh.dom.Find(id).(*Node)
	if !ok {
		return nil, fmt.Errorf("object %s is not resident", id)
	}
	return n, nil
}

func (sh *Shell) CommandNew(args []string) error {
	if len(args) == 0 {
		return HelpNew
	}
	p, err := objgraph.Create[*Node](sh.dom, objgraph.NoID)
	if err != nil {
		return err
	}
	p.Get().Value = strings.Join(args, " ")
	sh.held[p.ID()] = p
	fmt.Fprintf(sh.out, "%s\n", p.ID())
	return nil
}

func (sh *Shell) linkArgs(args []string, help error) (from *Node, to objgraph.ObjID, err error) {
	if len(args) != 2 {
		return nil, objgraph.NoID, help
	}
	fid, err := parseID(args[0])
	if err != nil {
		return nil, objgraph.NoID, err
	}
	if to, err = parseID(args[1]); err != nil {
		return nil, objgraph.NoID, err
	}
	from, err = sh.resident(fid)
	return
}

func (sh *Shell) CommandLink(args []string) error {
	from, to, err := sh.linkArgs(args, HelpLink)
	if err != nil {
		return err
	}
	target, err := sh.resident(to)
	if err != nil {
		return err
	}
	from.Next = append(from.Next, objgraph.New(target))
	return nil
}

func (sh *Shell) CommandUnlink(args []string) error {
	from, to, err := sh.linkArgs(args, HelpUnlink)
	if err != nil {
		return err
	}
	for i := range from.Next {
		if from.Next[i].ID() != to {
			continue
		}
		p := from.Next[i].Move()
		from.Next = append(from.Next[:i], from.Next[i+1:]...)
		p.Release()
		return nil
	}
	return fmt.Errorf("%s does not reference %s", from.ObjID(), to)
}

func (sh *Shell) CommandDrop(id objgraph.ObjID) error {
	h, ok := sh.held[id]
	if !ok {
		return fmt.Errorf("no handle on %s", id)
	}
	delete(sh.held, id)
	h.Release()
	return nil
}

func (sh *Shell) CommandSave(id objgraph.ObjID) error {
	n, err := sh.resident(id)
	if err != nil {
		return err
	}
	p := objgraph.New(n)
	defer p.Release()
	return p.Serialize(sh.dom, 0)
}

func (sh *Shell) CommandUnload(id objgraph.ObjID) error {
	h, ok := sh.held[id]
	if !ok {
		return fmt.Errorf("no handle on %s", id)
	}
	h.Unload()
	sh.held[id] = h
	return nil
}

func (sh *Shell) CommandLoad(id objgraph.ObjID) error {
	h, ok := sh.held[id]
	if !ok {
		h = objgraph.Placeholder[*Node](id, 0)
	}
	if err := h.Load(sh.dom); err != nil {
		return err
	}
	sh.held[id] = h
	return sh.CommandShow(id)
}

func (sh *Shell) CommandShow(id objgraph.ObjID) error {
	n, err := sh.resident(id)
	if err != nil {
		return err
	}
	sh.printNode(n)
	return nil
}

func (sh *Shell) printNode(n *Node) {
	next := make([]string, 0, len(n.Next))
	for _, p := range n.Next {
		s := p.ID().String()
		if p.IsPlaceholder() {
			s += "?"
		}
		next = append(next, s)
	}
	mark := " "
	if _, ok := sh.held[n.ObjID()]; ok {
		mark = "*"
	}
	fmt.Fprintf(sh.out, "%s%s\t%q\trefs=%d\tnext=[%s]\n",
		mark, n.ObjID(), n.Value, n.RefCount(), strings.Join(next, " "))
}

func (sh *Shell) CommandList() error {
	var nodes []*Node
	sh.dom.Each(func(o objgraph.Object) bool {
		if n, ok := o.(*Node); ok {
			nodes = append(nodes, n)
		}
		return true
	})
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ObjID() < nodes[j].ObjID() })
	for _, n := range nodes {
		sh.printNode(n)
	}
	for id, h := range sh.held {
		if h.IsPlaceholder() {
			fmt.Fprintf(sh.out, "*%s\tunloaded\n", id)
		}
	}
	return nil
}

func (sh *Shell) CommandStats() error {
	families, err := sh.metrics.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, l := range m.GetLabel() {
				labels = append(labels, l.GetName()+"="+l.GetValue())
			}
			switch {
			case m.GetCounter() != nil:
				fmt.Fprintf(sh.out, "%s{%s} %g\n", mf.GetName(), strings.Join(labels, ","), m.GetCounter().GetValue())
			case m.GetGauge() != nil:
				fmt.Fprintf(sh.out, "%s{%s} %g\n", mf.GetName(), strings.Join(labels, ","), m.GetGauge().GetValue())
			case m.GetHistogram() != nil:
				fmt.Fprintf(sh.out, "%s{%s} count=%d sum=%g\n", mf.GetName(), strings.Join(labels, ","),
					m.GetHistogram().GetSampleCount(), m.GetHistogram().GetSampleSum())
			}
		}
	}
	return nil
}
