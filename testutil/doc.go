// Package testutil provides test doubles and fixtures shared by the
// fr-service packages.
//
// MockNATSClient is an in-memory natsclient.Messenger. It records every
// published message and delivers it synchronously to subscriptions whose
// subject pattern matches, so a test can publish input points and read the
// derived points back without a server:
//
//	client := testutil.NewMockNATSClient()
//	testutil.PublishPoint(t, client, "points.App.Load", testutil.IntPoint("/App/Load", 3))
//	msgs := testutil.WaitForMessageCount(t, client, "derived.api", 1, time.Second)
//
// ManualClock satisfies fn.Clock for operators that depend on time
// (Timer, Average, Smooth, Acc).
//
// Integration tests that need a real server use natsclient.NewTestClient
// instead.
package testutil
