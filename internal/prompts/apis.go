package prompts

import (
	"fmt"
	"strings"
)

// apiBlurbs describes the external APIs the generated code may call. Keyed by
// the short name used in agent configuration.
var apiBlurbs = map[string]string{
	"coingecko":  "CoinGecko (https://api.coingecko.com/api/v3): token prices, market charts. No key needed for /simple/price.",
	"etherscan":  "Etherscan (https://api.etherscan.io/api): token transfers and balances, module=account endpoints.",
	"oneinch":    "1inch-style signer service: POST /api/v1/swap and /api/v1/quote, see the call stubs provided separately.",
	"duckduckgo": "DuckDuckGo (https://duckduckgo.com/html/?q=...): plain HTML search, parse result anchors.",
	"twitter":    "Twitter/X v2 (https://api.twitter.com/2): tweet search, user lookup, posting via POST /2/tweets with OAuth bearer.",
	"reddit":     "Reddit (https://www.reddit.com/r/<sub>/new.json): recent posts as JSON, no key for read access.",
}

// APIBlurbs joins the blurbs of the requested APIs into the {apis_str}
// substitution. Unknown names are kept as bare entries so the model still
// sees them.
func APIBlurbs(apis []string) string {
	lines := make([]string, 0, len(apis))
	for _, name := range apis {
		if blurb, ok := apiBlurbs[strings.ToLower(name)]; ok {
			lines = append(lines, "- "+blurb)
		} else {
			lines = append(lines, "- "+name)
		}
	}
	return strings.Join(lines, "\n")
}

// instrumentStubs maps instrument tags to signer-service curl stubs. The
// {agent} and {url} tokens are bound by InstrumentCalls, not by Render.
var instrumentStubs = map[string]string{
	"spot": `# Spot swap via the signer service:
curl -X POST {url}/api/v1/swap \
  -H "Content-Type: application/json" \
  -H "x-superior-agent-id: {agent}" \
  -d '{"token_in": "<address>", "token_out": "<address>", "amount_in": "<wei>", "slippage": 0.5}'
# Quote before swapping:
curl -X POST {url}/api/v1/quote \
  -H "Content-Type: application/json" \
  -d '{"token_in": "<address>", "token_out": "<address>", "amount_in": "<wei>"}'`,
	"futures": `# Futures are routed through the signer service:
curl -X POST {url}/api/v1/futures/position \
  -H "Content-Type: application/json" \
  -H "x-superior-agent-id: {agent}" \
  -d '{"market": "<symbol>", "side": "long|short", "size": "<amount>", "leverage": 1}'`,
	"options": `# Options are routed through the signer service:
curl -X POST {url}/api/v1/options/order \
  -H "Content-Type: application/json" \
  -H "x-superior-agent-id: {agent}" \
  -d '{"instrument": "<name>", "side": "buy|sell", "amount": "<contracts>"}'`,
	"defi": `# Generic DeFi interaction via the signer service:
curl -X POST {url}/api/v1/defi/execute \
  -H "Content-Type: application/json" \
  -H "x-superior-agent-id: {agent}" \
  -d '{"protocol": "<name>", "action": "<deposit|withdraw|claim>", "params": {}}'`,
}

// InstrumentCalls expands instrument tags into a concatenation of HTTP call
// stubs against the signer service
func InstrumentCalls(instruments []string, agentID, signerURL string) (string, error) {
	var parts []string
	for _, inst := range instruments {
		stub, ok := instrumentStubs[strings.ToLower(inst)]
		if !ok {
			return "", fmt.Errorf("unknown instrument: %s", inst)
		}
		stub = strings.ReplaceAll(stub, "{agent}", agentID)
		stub = strings.ReplaceAll(stub, "{url}", signerURL)
		parts = append(parts, stub)
	}
	return strings.Join(parts, "\n\n"), nil
}
