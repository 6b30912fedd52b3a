// Package recovery はワーカー起動失敗からの復旧機能を提供する。
//
// Pool.Init がワーカーの起動に失敗すると、プールは起動済みのワーカーを
// 回収して未初期化状態に戻る。Managerはこれを利用し、待機時間を
// 伸ばしながら Init を再試行する。
//
// # 使用例
//
//	config := recovery.DefaultConfig()
//	config.MaxRetries = 5
//
//	manager := recovery.New(config)
//	if err := manager.Init(ctx, pool, 4); err != nil {
//	    return err
//	}
package recovery
