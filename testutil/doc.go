// Package testutil provides test doubles and fixtures shared by barstreams
// package tests.
//
// Transport is an in-memory stand-in for natsclient.Client. It records every
// published message with its headers, keeps one handler per subscribed
// subject, and can inject publish and subscribe failures:
//
//	tr := testutil.NewTransport()
//	p.transport = tr
//	require.NoError(t, p.Start(ctx))
//
//	tr.Deliver(t, "bars.batches", []byte(testutil.TwoRecordsCSV), map[string]string{"filename": "btc.csv"})
//	msgs := tr.WaitForMessages(t, "bars.json", 2, time.Second)
//
// The CSV fixtures follow the Kaggle Bitcoin history layout. TwoRecordsCSV
// holds two decodable rows around one NaN row; BadRecordCSV fails on its
// second row.
//
// Nothing here talks to a real server. Integration tests use
// natsclient.NewTestClient behind the integration build tag.
package testutil
