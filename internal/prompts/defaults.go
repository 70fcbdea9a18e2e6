package prompts

// Default template sets. Placeholder sets here define the required set for
// validation of custom overrides.

var defaultTradingTemplates = map[string]string{
	"system_prompt": `You are {agent_id}, an autonomous crypto trading agent.
The current time is {time}.
Your goal is to grow the metric "{metric_name}".
Current state of your wallet:
{metric_state}
You operate by producing strategies and Python code that is executed in a sandbox on your behalf. Be precise and only output what is asked for.`,

	"strategy_prompt_first": `You have never traded before. You can reach the market through these APIs:
{apis_str}
Propose a first trading strategy to grow "{metric_name}". Describe the strategy in plain prose, including which tokens you will research and what conditions would make you buy or sell.`,

	"strategy_prompt": `Here is what is happening around you right now:
{cur_environment}

Your previous strategy was:
{prev_strategy}

It ended with result: {prev_strategy_result}

Propose your next trading strategy. Keep what worked, change what did not, and react to the environment above. Describe the strategy in plain prose.`,

	"address_research_code_prompt": `Write Python code that researches the contract addresses of every token mentioned in your strategy and prints a single JSON object mapping token symbol to checksummed address on Ethereum mainnet. Print only the JSON object.
Wrap the code in a ` + "```python" + ` fenced block.`,

	"trading_code_prompt": `Your strategy:
{strategy_output}

Known token addresses:
{address_research}

You can reach the market through these APIs:
{apis_str}

Use these HTTP calls to trade through the signer service:
{trading_instruments_str}

Write Python code implementing the strategy. Identify yourself with the header x-superior-agent-id: {agent_id} against {txn_service_url}. Print a short status line for every action you take.
Wrap the code in a ` + "```python" + ` fenced block.`,

	"trading_code_non_address_prompt": `Your strategy:
{strategy_output}

You can reach the market through these APIs:
{apis_str}

Use these HTTP calls to trade through the signer service:
{trading_instruments_str}

Write Python code implementing the strategy. Identify yourself with the header x-superior-agent-id: {agent_id} against {txn_service_url}. Print a short status line for every action you take.
Wrap the code in a ` + "```python" + ` fenced block.`,

	"regen_code_prompt": `The code you produced failed. Accumulated errors so far:
{errors}

The previous code was:
{previous_code}

Fix the code. Keep the same intent, correct the failures above, and output the full corrected program.
Wrap the code in a ` + "```python" + ` fenced block.`,
}

var defaultMarketingTemplates = map[string]string{
	"system_prompt": `You are {agent_id}, an autonomous marketing agent acting as {role}.
The current time is {time}.
Your goal is to grow the metric "{metric_name}", currently at {metric_state}.
You operate by producing strategies and Python code that is executed in a sandbox on your behalf. Be precise and only output what is asked for.`,

	"research_code_prompt_first": `This is your first cycle. You can reach the outside world through these APIs:
{apis_str}
Write Python code that researches your audience: recent mentions, trending topics and what similar accounts post. Print a concise research digest.
Wrap the code in a ` + "```python" + ` fenced block.`,

	"research_code_prompt": `Here is what is happening around you right now:
{notifications_str}

Your previous strategy was:
{prev_strategy}

A similar past strategy: {rag_summary}
It moved the metric from {before_metric_state} to {after_metric_state}.

Write Python code that researches what to do next, given the above. Print a concise research digest.
Wrap the code in a ` + "```python" + ` fenced block.`,

	"strategy_prompt": `Environment:
{notifications_str}

Research findings:
{research_output}

It is {time}. Propose a strategy to grow "{metric_name}" over the next cycle. Describe the strategy in plain prose.`,

	"marketing_code_prompt": `Your strategy:
{strategy_output}

You can reach the outside world through these APIs:
{apis_str}

Write Python code implementing the strategy. Print a short status line for every action you take.
Wrap the code in a ` + "```python" + ` fenced block.`,

	"regen_code_prompt": `The code you produced failed. Accumulated errors so far:
{errors}

The previous code was:
{previous_code}

Fix the code. Keep the same intent, correct the failures above, and output the full corrected program.
Wrap the code in a ` + "```python" + ` fenced block.`,
}
