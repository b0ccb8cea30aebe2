package mcp

import "github.com/mark3labs/mcp-go/mcp"

var appendToolDef = mcp.NewTool("ledger_append",
	mcp.WithDescription("Append one expense or income row to the CSV ledger. Writes the header first when the file is new or empty."),
	mcp.WithNumber("amount",
		mcp.Description("Signed amount: negative for an expense, positive for income."),
		mcp.Required(),
	),
	mcp.WithString("time", mcp.Description("Local time, \"YYYY-MM-DD HH:MM\". Defaults to now.")),
	mcp.WithString("app", mcp.Description("Payment app: WeChat, Alipay, Bank or Unknown (default).")),
	mcp.WithString("currency", mcp.Description("Currency code, default CNY.")),
	mcp.WithString("merchant", mcp.Description("Merchant or counterparty.")),
	mcp.WithString("category", mcp.Description("Free-form category.")),
	mcp.WithString("note", mcp.Description("Free-form note.")),
	mcp.WithNumber("confidence", mcp.Description("Extraction confidence between 0 and 1.")),
	mcp.WithString("raw", mcp.Description("Source text the row was derived from; compacted before writing.")),
)

var listToolDef = mcp.NewTool("ledger_list",
	mcp.WithDescription("List ledger rows newest first. Each item carries a digest usable with ledger_get."),
	mcp.WithString("prefix", mcp.Description("Time prefix filter, e.g. \"2026-03\" or \"2026-03-01\".")),
	mcp.WithNumber("limit", mcp.Description("Page size, default 20, max 100.")),
	mcp.WithNumber("offset", mcp.Description("Rows to skip.")),
)

var getToolDef = mcp.NewTool("ledger_get",
	mcp.WithDescription("Fetch one ledger row by digest."),
	mcp.WithString("digest", mcp.Description("Row digest from ledger_list."), mcp.Required()),
)

var statsToolDef = mcp.NewTool("ledger_stats",
	mcp.WithDescription("Total expense and income for a day, month or year, with per-merchant expense totals."),
	mcp.WithString("period",
		mcp.Description("Period length, default month."),
		mcp.Enum("day", "month", "year"),
	),
	mcp.WithString("anchor", mcp.Description("Any date inside the period, YYYY-MM-DD. Defaults to today.")),
	mcp.WithNumber("shift", mcp.Description("Periods to move from the anchor, e.g. -1 for the previous one.")),
)

var exportToolDef = mcp.NewTool("ledger_export",
	mcp.WithDescription("Export ledger rows in file order to a JSONL file in the exports directory next to the ledger."),
	mcp.WithString("path", mcp.Description("Target .jsonl path directly in the exports directory. Defaults to ledger-<timestamp>.jsonl.")),
	mcp.WithString("prefix", mcp.Description("Only export rows whose time starts with this, e.g. \"2026-03\".")),
)

var importToolDef = mcp.NewTool("ledger_import",
	mcp.WithDescription("Append the rows of a JSONL export to the ledger. Rows already in the ledger are reported as duplicates."),
	mcp.WithString("path", mcp.Description("Export file directly in the exports directory."), mcp.Required()),
	mcp.WithString("mode",
		mcp.Description("skip (default) imports the good rows; error imports nothing if any line fails."),
		mcp.Enum("skip", "error"),
	),
)

var historyToolDef = mcp.NewTool("capture_history",
	mcp.WithDescription("List recorded capture outcomes newest first."),
	mcp.WithString("outcome",
		mcp.Description("Filter by outcome."),
		mcp.Enum("delivered", "manual_fallback", "failed"),
	),
	mcp.WithString("source", mcp.Description("Filter by trigger source: hotkey, quick_toggle, broadcast or resume.")),
	mcp.WithNumber("limit", mcp.Description("Page size, default 20, max 100.")),
	mcp.WithNumber("offset", mcp.Description("Records to skip.")),
)

var captureTextToolDef = mcp.NewTool("capture_text",
	mcp.WithDescription("Extract the readable text of a content tree the way a capture would, optionally asking the model for a ledger row and saving it."),
	mcp.WithObject("tree",
		mcp.Description("Content tree: {surface, label|text, description|content_description, children[]}."),
		mcp.Required(),
	),
	mcp.WithBoolean("parse", mcp.Description("Ask the model for a row suggestion.")),
	mcp.WithBoolean("save", mcp.Description("Append the suggestion to the ledger. Requires parse.")),
)
