/*
Package domain contains the core models of the finchat conversation driver.

It defines the messages exchanged with the chat-completion service, the tool
calls the model requests, the tool descriptors advertised by the tool provider,
and the hop budget that caps tool-bearing round trips. The package is kept free
of I/O so the driver loop can be tested against synthetic histories.

# Key Entities

  - Message: a role-tagged conversation entry (developer, system, user, assistant, tool).
  - ToolCall: a request from the model to invoke a named tool with raw JSON arguments.
  - History: an append-only sequence of messages owned by one conversation.
  - HopBudget: the number of tool-bearing round trips still allowed.
  - Conversation: a persisted History with identity and timestamps.
*/
package domain
