package influx

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// DefaultResolvConf is read to find a DNS server when none is given.
const DefaultResolvConf = "/etc/resolv.conf"

// ResolveSRV looks up the SRV record name against server (host:port) and
// returns the "host:port" of the best target: lowest priority first, then
// highest weight. An empty server uses the first nameserver of
// DefaultResolvConf.
func ResolveSRV(ctx context.Context, name, server string, timeout time.Duration) (string, error) {
	if name == "" {
		return "", fmt.Errorf("srv: name must not be empty")
	}
	if server == "" {
		cfg, err := dns.ClientConfigFromFile(DefaultResolvConf)
		if err != nil {
			return "", fmt.Errorf("srv: read %s: %w", DefaultResolvConf, err)
		}
		if len(cfg.Servers) == 0 {
			return "", fmt.Errorf("srv: no nameserver in %s", DefaultResolvConf)
		}
		server = net.JoinHostPort(cfg.Servers[0], cfg.Port)
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), dns.TypeSRV)
	msg.RecursionDesired = true

	client := &dns.Client{Timeout: timeout}
	resp, _, err := client.ExchangeContext(ctx, msg, server)
	if err != nil {
		return "", fmt.Errorf("srv %s: %w", name, err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return "", fmt.Errorf("srv %s: rcode %s", name, dns.RcodeToString[resp.Rcode])
	}

	var records []*dns.SRV
	for _, rr := range resp.Answer {
		if srv, ok := rr.(*dns.SRV); ok {
			records = append(records, srv)
		}
	}
	if len(records) == 0 {
		return "", fmt.Errorf("srv %s: no SRV records in answer", name)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Priority != records[j].Priority {
			return records[i].Priority < records[j].Priority
		}
		return records[i].Weight > records[j].Weight
	})

	best := records[0]
	return net.JoinHostPort(strings.TrimSuffix(best.Target, "."), strconv.Itoa(int(best.Port))), nil
}
