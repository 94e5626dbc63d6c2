package llm

const composePrompt = `You are writing a short research answer from numbered evidence.

Rules:
- Use ONLY the evidence below. Do not add facts from memory.
- End every sentence that states a fact with the number of each evidence entry supporting it, like [1] or [2][3].
- If entries disagree, say so and cite both sides.
- Plain prose, at most 6 sentences. No headings, no lists, no links.

Question: %s

Evidence:
%s
Respond with ONLY the answer text.`
