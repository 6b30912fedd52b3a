// Package scenario はワーカープールに負荷をかけるシナリオ実行機能を提供する。
//
// シナリオエンジンはプールの起動（失敗時はリトライ）、ジョブの投入、
// 完了待ち、停止までを一通り実行し、結果をレポートにまとめる。
// 障害注入を有効にすると、ジョブの一部に遅延やpanicが注入される。
//
// # 機能
//
// - シナリオ定義と実行
// - 定義済みプリセットシナリオ
// - 実行結果のレポート生成
// - コンテキストによる中断（投入を止めてプールを停止する）
//
// # プリセットシナリオ
//
// - demo: 4ワーカーで5秒のジョブを12件処理
// - quick: 短時間の動作確認
// - burst: 初期容量を大きく超える投入でキューを伸長させる
// - producers: 多数のゴルーチンからの並行投入
// - faulty: 遅延とpanicの注入
// - idle: ワーカーもジョブもない起動と停止
//
// ワーカー数が0でジョブがある場合、ジョブは実行されないため
// コンテキストがキャンセルされるまで戻らない。
//
// # 使用例
//
//	config := scenario.DemoScenario()
//	engine := scenario.New(config)
//	result, err := engine.Run(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.Report())
package scenario
