// Package chaos はワーカープールへの障害注入機能を提供する。
//
// Injectorはジョブを包み、設定した割合のジョブに遅延やpanicを注入して、
// プールがジョブの失敗や遅いジョブに耐えられることを確かめるために使用される。
//
// # 障害タイプ
//
// - Delay: ジョブの実行前に遅延を注入
// - Panic: ジョブの実行前にpanicを発生させる（ワーカーが回収する）
//
// # 使用例
//
//	config := chaos.DefaultConfig()
//	config.Ratio = 0.2
//
//	inj := chaos.New(config)
//	pool.Submit(inj.Wrap(worker.Func(task)))
package chaos
