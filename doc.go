// Package xhub is an in-process, typed message hub.
//
// Components attach through messengers created by a Hub. An addressable
// messenger is reachable at one address; a broker messenger sees every origin
// message before its final target does:
//
//	hub, closeHub, _ := xhub.New[string, string](func(b *xhub.HubBuilder[string, string]) {
//	    b.WithLogger(logger)
//	})
//	defer closeHub()
//
//	_, svcInbox, _ := hub.Create(ctx, xhub.Addressable("svc"))
//	client, clientInbox, _ := hub.Create(ctx, xhub.Addressable("client"))
//	clientInbox.Close() // client only sends; broadcasts skip it
//
//	replies, _ := client.Message("ping", xhub.Address("svc")).Send()
//
//	_, mc, _ := svcInbox.NextPayload(ctx)
//	mc.Reply("pong").Send()
//	mc.Close()
//
// Every delivered MessageClient must be closed, and so should every Receptor
// nobody reads: a hop delivered to an unread Receptor waits until it is closed
// or collected. Closing a client that took no
// action forwards the message to the next candidate, so brokers that do not
// care about a message need do nothing but Close it. Replies travel back along
// the message's return path: every observer that opted in with SpawnObserver,
// most recent first, then the author.
//
// One goroutine per hub makes every routing decision, in the order the
// actions were enqueued.
package xhub
