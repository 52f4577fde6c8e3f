/*
Package bridge runs one child process that speaks newline-delimited JSON-RPC
over its standard streams and turns it into a request/reply primitive.

The lifecycle proceeds as follows:

 1. Start launches the child with all three standard streams piped. A drain
    goroutine starts consuming stderr before anything is written to stdin, so
    a chatty child can never wedge itself against a full stderr buffer. A
    reader goroutine takes ownership of stdout for the life of the bridge.

 2. Initialize writes an "initialize" request line and waits up to the
    handshake bound for one reply line. The reply is parsed leniently: a line
    that is not valid JSON-RPC is logged and tolerated, but an explicit error
    object means the server refused the handshake and the bridge is done.
    On success the "notifications/initialized" line is written and the bridge
    becomes ready.

 3. Query writes one request line, flushes, and consumes exactly one reply
    line within the query bound. The reply is returned with surrounding
    whitespace trimmed.

 4. Close ends the conversation by closing stdin. A child that does not exit
    on its own within a short grace period is killed.

The bridge carries no lock. Holding it to one request/reply cycle at a time
is the caller's job, normally done through session.Session.

Because the write has already happened when a query's wait elapses, a timed
out query leaves a reply owed on the pipe. The bridge counts those, and later
queries discard that many leading lines before taking their own. Replies
arrive in request order on a serialized pipe, so a late reply is dropped
rather than handed to the wrong caller.
*/
package bridge
