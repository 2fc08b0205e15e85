package stage

import "trendpress/internal/schema"

// candidateSchema validates one discovery record.
var candidateSchema = &schema.Schema{
	Name: "discovery.item",
	Fields: []schema.FieldSpec{
		{Name: "item_name", Requirement: schema.Required, Check: schema.IsString},
		{Name: "issue_reason", Requirement: schema.Required, Check: schema.IsString},
		{Name: "evidence_links", Requirement: schema.Required, Check: schema.IsArray},
		{Name: "score", Requirement: schema.Required, Check: schema.IsNumberIn(0, 100)},
		{Name: "observed_at", Requirement: schema.Required, Check: schema.IsString},
	},
}

var verifiedItemSchema = &schema.Schema{
	Name: "verification.item",
	Fields: []schema.FieldSpec{
		{Name: "item_slug", Requirement: schema.Required, Check: schema.IsString},
		{Name: "item_name", Requirement: schema.Required, Check: schema.IsString},
		{Name: "available", Requirement: schema.Required},
		{Name: "canonical_product_name", Requirement: schema.Required, Check: schema.IsString},
		{Name: "match_confidence", Requirement: schema.Required, Check: schema.IsNumberIn(0, 1)},
		{Name: "queries_attempted", Requirement: schema.Required, Check: schema.IsArray},
		{Name: "partner_url", Requirement: schema.Optional, Check: schema.IsString},
		{Name: "reject_reason", Requirement: schema.Optional, Check: schema.IsString},
	},
}

var reviewedItemSchema = &schema.Schema{
	Name: "review.item",
	Fields: []schema.FieldSpec{
		{Name: "item_slug", Requirement: schema.Required, Check: schema.IsString},
		{Name: "qa_status", Requirement: schema.Required, Check: schema.IsOneOf(VerdictPass, VerdictPassMinorEdits, VerdictFail)},
		{Name: "reasons", Requirement: schema.Required, Check: schema.IsArray},
		{Name: "required_fixes", Requirement: schema.Required, Check: schema.IsArray},
	},
}

var postResultSchema = &schema.Schema{
	Name: "publish.item",
	Fields: []schema.FieldSpec{
		{Name: "item_slug", Requirement: schema.Required, Check: schema.IsString},
		{Name: "published_at", Requirement: schema.Required, Check: schema.IsString},
		{Name: "status", Requirement: schema.Required, Check: schema.IsOneOf("success", "fail")},
		{Name: "post_id", Requirement: schema.Optional, Check: schema.IsString},
		{Name: "post_url", Requirement: schema.Optional, Check: schema.IsString},
	},
}

var runRequestSchema = schema.Schema{
	Name: "discovery.input",
	Fields: []schema.FieldSpec{
		{Name: "run_id", Requirement: schema.Required, Check: schema.IsString},
		{Name: "mode", Requirement: schema.Required, Check: schema.IsOneOf("fixture", "live")},
		{Name: "top_n", Requirement: schema.Required, Check: schema.IsNumberIn(1, 20)},
		{Name: "window_hours", Requirement: schema.Required, Check: schema.IsNumberIn(1, 168)},
		{Name: "started_at", Requirement: schema.Required, Check: schema.IsString},
	},
}

var discoveryDocSchema = schema.Schema{
	Name: "discovery.output",
	Fields: []schema.FieldSpec{
		{Name: "run_id", Requirement: schema.Required, Check: schema.IsString},
		{Name: "mode", Requirement: schema.Required, Check: schema.IsOneOf("fixture", "live")},
		{Name: "generated_at", Requirement: schema.Required, Check: schema.IsString},
		{Name: "items", Requirement: schema.Required},
	},
	ItemsField: "items",
	Item:       candidateSchema,
}

var verificationDocSchema = schema.Schema{
	Name: "verification.output",
	Fields: []schema.FieldSpec{
		{Name: "run_id", Requirement: schema.Required, Check: schema.IsString},
		{Name: "generated_at", Requirement: schema.Required, Check: schema.IsString},
		{Name: "items", Requirement: schema.Required},
	},
	ItemsField: "items",
	Item:       verifiedItemSchema,
}

var reviewDocSchema = schema.Schema{
	Name: "review.output",
	Fields: []schema.FieldSpec{
		{Name: "run_id", Requirement: schema.Required, Check: schema.IsString},
		{Name: "generated_at", Requirement: schema.Required, Check: schema.IsString},
		{Name: "items", Requirement: schema.Required},
	},
	ItemsField: "items",
	Item:       reviewedItemSchema,
}

var publishDocSchema = schema.Schema{
	Name: "publish.output",
	Fields: []schema.FieldSpec{
		{Name: "run_id", Requirement: schema.Required, Check: schema.IsString},
		{Name: "generated_at", Requirement: schema.Required, Check: schema.IsString},
		{Name: "posts", Requirement: schema.Required, Check: schema.IsArray},
	},
	ItemsField: "posts",
	Item:       postResultSchema,
}

// InputSchema returns the declared input schema for a stage. Every stage's
// input is the previous stage's output; Discovery's input is the RunRequest
// the controller builds.
func InputSchema(s Stage) schema.Schema {
	switch s {
	case Discovery:
		return runRequestSchema
	case Verification:
		return discoveryDocSchema
	case Review:
		return verificationDocSchema
	case Publish:
		return reviewDocSchema
	}
	return schema.Schema{Name: "unknown"}
}

// OutputSchema returns the declared output schema for a stage.
func OutputSchema(s Stage) schema.Schema {
	switch s {
	case Discovery:
		return discoveryDocSchema
	case Verification:
		return verificationDocSchema
	case Review:
		return reviewDocSchema
	case Publish:
		return publishDocSchema
	}
	return schema.Schema{Name: "unknown"}
}
