package research

import (
	"fmt"
	"time"
)

// CurrentDate renders the date the way the prompts expect it.
func CurrentDate(now time.Time) string {
	return now.Format("January 2, 2006")
}

func queryWriterPrompt(date, topic string, numberQueries int) string {
	return fmt.Sprintf(`Your goal is to generate sophisticated and diverse web search queries. These queries are intended for an advanced automated web research tool capable of analyzing complex results, following links, and synthesizing information.

Instructions:
- Always prefer a single search query, only add another query if the original question requests multiple aspects or elements and one query is not enough.
- Each query should focus on one specific aspect of the original question.
- Don't produce more than %d queries.
- Queries should be diverse, if the topic is broad, generate more than 1 query.
- Don't generate multiple similar queries, 1 is enough.
- Query should ensure that the most current information is gathered. The current date is %s.

Format:
- Format your response as a JSON object inside a fenced json code block with these exact keys:
   - "rationale": Brief explanation of why these queries are relevant
   - "query": A list of search queries

Example:

`+"```json"+`
{
    "rationale": "To answer this comparative growth question accurately, we need specific data points on each company's stock performance over the same period.",
    "query": ["Apple total revenue growth fiscal year 2024", "iPhone unit sales growth fiscal year 2024"]
}
`+"```"+`

Context: %s`, numberQueries, date, topic)
}

func webSearcherPrompt(date, query string) string {
	return fmt.Sprintf(`Conduct targeted Google Searches to gather the most recent, credible information on "%s" and synthesize it into a verifiable text artifact.

Instructions:
- Query should ensure that the most current information is gathered. The current date is %s.
- Conduct multiple, diverse searches to gather comprehensive information.
- Consolidate key findings while meticulously tracking the source(s) for each specific piece of information.
- The output should be a well-written summary or report based on your search findings.
- Only include the information found in the search results, don't make up any information.

Research Topic:
%s`, query, date, query)
}

func reflectionPrompt(date, topic, summaries string) string {
	return fmt.Sprintf(`You are an expert research assistant analyzing summaries about "%s". The current date is %s.

Instructions:
- Identify knowledge gaps or areas that need deeper exploration and generate a follow-up query. (1 or multiple).
- If provided summaries are sufficient to answer the user's question, don't generate a follow-up query.
- If there is a knowledge gap, generate a follow-up query that would help expand your understanding.
- Focus on technical details, implementation specifics, or emerging trends that weren't fully covered.

Requirements:
- Ensure the follow-up query is self-contained and includes necessary context for web search.

Output Format:
- Format your response as a JSON object inside a fenced json code block with these exact keys:
   - "is_sufficient": true or false
   - "knowledge_gap": Describe what information is missing or needs clarification
   - "follow_up_queries": Write a specific question to address this gap

Example:
`+"```json"+`
{
    "is_sufficient": true,
    "knowledge_gap": "The summary lacks information about performance metrics and benchmarks",
    "follow_up_queries": ["What are typical performance benchmarks and metrics used to evaluate [specific technology]?"]
}
`+"```"+`

Reflect carefully on the Summaries to identify knowledge gaps and produce a follow-up query.

Summaries:
%s`, topic, date, summaries)
}

func answerPrompt(date, topic, summaries, sources string) string {
	return fmt.Sprintf(`Generate a high-quality answer to the user's question based on the provided summaries.

Instructions:
- The current date is %s.
- You are the final step of a multi-step research process, don't mention that you are the final step.
- You have access to all the information gathered from the previous steps.
- You have access to the user's question.
- Generate a high-quality answer to the user's question based on the provided summaries and the user's question.
- Include the sources you used from the Summaries in the answer correctly, use markdown format (e.g. [apnews](https://vertexaisearch.cloud.google.com/id/1-0)). THIS IS A MUST.

User Context:
- %s

Summaries:
%s

Sources:
%s`, date, topic, summaries, sources)
}
