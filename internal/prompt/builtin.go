package prompt

// builtinTemplates maps template name to content.
var builtinTemplates = map[string]string{
	"refine.md":         refineTemplate,
	"generate-code.md":  generateCodeTemplate,
	"generate-tests.md": generateTestsTemplate,
	"fix.md":            fixTemplate,
	"review.md":         reviewTemplate,
}

const refineTemplate = `# Refine Ticket

Turn the raw ticket below into a precise work specification.

## Raw Ticket
{{ticket_url}}

{{ticket_body}}

## Instructions
Respond with a single JSON object, no surrounding prose:
{
  "title": "one-line summary",
  "description": "what to build and why",
  "requirements": ["each concrete requirement as one entry"],
  "acceptance_criteria": ["each verifiable criterion as one entry"]
}
`

const generateCodeTemplate = `# Generate Code: {{title}}

## Description
{{description}}

## Requirements
{{requirements}}

{{#if acceptance_criteria}}
## Acceptance Criteria
{{acceptance_criteria}}
{{/if}}

{{#if context_files}}
## Existing Code For Context
{{context_files}}
{{/if}}

{{#if feedback}}
## Reviewer Feedback On The Previous Attempt
{{feedback}}
{{/if}}

## Instructions
Write the complete implementation. Respond with a single JSON object:
{
  "code": "the full source",
  "method_name": "the primary entry point you implemented",
  "explanation": "one short paragraph on the approach"
}
`

const generateTestsTemplate = `# Generate Tests: {{title}}

## Code Under Test
{{code}}

## Requirements
{{requirements}}

{{#if acceptance_criteria}}
## Acceptance Criteria
{{acceptance_criteria}}
{{/if}}

## Instructions
Write a test suite that exercises every requirement, including error
paths and edge cases — empty inputs, boundary values, failure modes.
Respond with a single JSON object:
{
  "tests": "the full test source",
  "explanation": "what the suite covers and what it deliberately skips"
}
`

const fixTemplate = `# Fix Build/Test Failures

The code below failed its checks. Repair it.

## Current Code
{{code}}

{{#if tests}}
## Current Tests
{{tests}}
{{/if}}

{{#if build_errors}}
## Build Errors
{{build_errors}}
{{/if}}

{{#if test_errors}}
## Test Failures
{{test_errors}}
{{/if}}

This is repair attempt {{attempt}}. Address the listed errors directly;
do not rewrite working parts.

## Instructions
Respond with a single JSON object:
{
  "fixed_code": "the corrected source (empty string if the code needs no change)",
  "fixed_tests": "the corrected tests (empty string if the tests need no change)",
  "confidence": 0-100,
  "explanation": "what was wrong and what you changed"
}
`

const reviewTemplate = `# Review: {{title}}

## Code
{{code}}

{{#if tests}}
## Tests
{{tests}}
{{/if}}

## Requirements
{{requirements}}

## Instructions
Review adversarially: assume the implementation is wrong until proven
otherwise. Check each requirement against the exact code path that
satisfies it. Look for unhandled error paths, nil/empty inputs,
off-by-one mistakes, and untested failure modes.
Respond with a single JSON object:
{
  "score": 0-100,
  "errors": ["each defect that must be fixed"],
  "warnings": ["each concern that should be looked at"]
}
`
