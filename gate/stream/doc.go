/*
Package stream carries query/reply cycles over a single WebSocket connection,
for callers that hold a conversation open instead of paying an HTTP round
trip per query.

There are two messages in this protocol: "query" frames are sent
client->server, and "reply" frames are sent server->client. The schema for
these frames is in types.go.

The protocol proceeds as follows:

1. The client dials the gate's query endpoint and upgrades to a WebSocket
connection. Bearer auth happens on the upgrade request like any other.

2. Each query frame carries exactly one request line for the server process.
The gate forwards it through the shared session, so streaming callers and
plain HTTP callers contend for the same one-at-a-time access.

3. The gate answers every frame, in order, with a reply frame holding either
the result line or an error string. A failed query ends neither the
connection nor the server process.

4. The client closes the connection with a normal closure when done.
*/
package stream
