/*
Package ports defines the driven ports (interfaces) for the finchat driver.

These interfaces decouple the conversation loop from external implementations,
allowing it to run against any OpenAI-compatible chat service, any MCP tool
provider, and various conversation stores.

# Key Interfaces

  - ChatCompleter: Submits a history (and optionally tools) and returns the assistant message.
  - ToolProvider: Lists and invokes tools (e.g., an MCP subprocess).
  - ConversationStore: Persists multi-turn conversation histories.
  - DistributedLocker: Provides distributed locking for concurrent conversation access.
  - Synthesizer: Turns an answer into speech.
*/
package ports
