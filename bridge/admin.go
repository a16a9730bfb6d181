package bridge

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/coalalib/casan"
	cerr "github.com/coalalib/casan/errors"
	"github.com/dustin/go-humanize"
	"github.com/goccy/go-yaml"
)

func (b *Bridge) handleAdmin(w http.ResponseWriter, r *http.Request) {
	page := strings.TrimPrefix(r.URL.Path, b.admin)
	switch page {
	case "/", "/index":
		b.adminIndex(w, r)
	case "/conf":
		b.adminConf(w, r)
	case "/run":
		b.adminRun(w, r)
	case "/slave":
		if r.Method == http.MethodPost {
			b.adminSlaveSet(w, r)
			return
		}
		b.adminSlaves(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (b *Bridge) adminIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<html><body><ul>
<li><a href="%[1]s/conf">configuration</a>
<li><a href="%[1]s/run">running status</a>
<li><a href="%[1]s/slave">slave status</a>
<li><a href="/metrics">metrics</a>
</ul></body></html>
`, b.admin)
}

func (b *Bridge) adminConf(w http.ResponseWriter, r *http.Request) {
	data, err := yaml.Marshal(b.cfg)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.Write(data)
}

func (b *Bridge) adminRun(w http.ResponseWriter, r *http.Request) {
	st := b.core.Status()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	fmt.Fprintf(w, "started      %s (%s)\n", st.Started.Format("2006-01-02 15:04:05"), humanize.Time(st.Started))
	fmt.Fprintf(w, "hello id     %d\n", st.HelloID)
	fmt.Fprintf(w, "next hello   %s\n", humanize.Time(st.NextHello))
	fmt.Fprintf(w, "outstanding  %s\n", humanize.Comma(int64(st.Outstanding)))
	fmt.Fprintf(w, "cached       %s\n", humanize.Comma(int64(st.CachedReplies)))
	fmt.Fprintf(w, "timers       firsthello=%s hello=%s slavettl=%s cachecleanup=%s\n",
		st.Options.FirstHello, st.Options.HelloInterval, st.Options.SlaveTTL, st.Options.CacheCleanup)

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LINK\tMTU\tBROADCAST\tDEDUP")
	for _, l := range st.Links {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", l.Name, humanize.Bytes(uint64(l.MTU)), l.Broadcast, humanize.Comma(int64(l.Dedup)))
	}
	tw.Flush()
}

func (b *Bridge) adminSlaves(w http.ResponseWriter, r *http.Request) {
	st := b.core.Status()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tLINK\tADDR\tMTU\tTTL\tEXPIRES")
	for _, s := range st.Slaves {
		expires := "-"
		if s.Status == casan.SlaveRunning {
			expires = humanize.Time(s.Deadline)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\t%s\n", s.ID, s.Status, dash(s.Link), dash(s.Addr), s.MTU, s.TTL, expires)
	}
	tw.Flush()

	for _, s := range st.Slaves {
		if len(s.Resources) == 0 {
			continue
		}
		fmt.Fprintf(w, "\nslave %d\n", s.ID)
		for _, res := range s.Resources {
			fmt.Fprintf(w, "  %s\n", res)
		}
	}
}

// adminSlaveSet handles slaveid=N&status=inactive. A slave can only be
// forced down: running needs an association.
func (b *Bridge) adminSlaveSet(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sid, err := strconv.Atoi(r.PostForm.Get("slaveid"))
	if err != nil || sid <= 0 {
		http.Error(w, "bad slaveid", http.StatusBadRequest)
		return
	}
	if status := r.PostForm.Get("status"); status != "inactive" {
		http.Error(w, fmt.Sprintf("cannot set status %q", status), http.StatusBadRequest)
		return
	}
	if err := b.core.ResetSlave(sid); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, cerr.UnknownSlave) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "slave %d set to inactive\n", sid)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
