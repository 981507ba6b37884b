package catalog

import "zentoso/backend/internal/domain"

func prices(solid, metallic, pearl int64) map[domain.FinishID]int64 {
	return map[domain.FinishID]int64{
		domain.FinishSolid:    solid,
		domain.FinishMetallic: metallic,
		domain.FinishPearl:    pearl,
	}
}

func defaultVehicles() []domain.VehicleClass {
	return []domain.VehicleClass{
		{ID: "kei", Name: "軽自動車", Size: domain.SizeLight, Prices: prices(100000, 120000, 140000)},
		{ID: "compact", Name: "コンパクトカー", Size: domain.SizeRegular, Prices: prices(120000, 140000, 160000)},
		{ID: "sedan", Name: "中型セダン", Size: domain.SizeRegular, Prices: prices(140000, 160000, 180000)},
		{ID: "suv", Name: "SUV", Size: domain.SizeLarge, Prices: prices(160000, 180000, 200000)},
		{ID: "minivan", Name: "ミニバン", Size: domain.SizeLarge, Prices: prices(180000, 200000, 220000)},
		{ID: "onebox", Name: "ワンボックス", Size: domain.SizeLarge, Prices: prices(200000, 220000, 240000)},
	}
}

func defaultFinishes() []domain.PaintFinish {
	return []domain.PaintFinish{
		{ID: domain.FinishSolid, Name: "ソリッド (単色)", Description: "シンプルで力強い発色。クラシックな印象に。"},
		{ID: domain.FinishMetallic, Name: "メタリック", Description: "金属片を含んだ塗料で、キラキラとした輝きを放ちます。"},
		{ID: domain.FinishPearl, Name: "パール", Description: "真珠のような深みのある光沢と高級感を演出します。"},
	}
}

func defaultOptions() []domain.OptionItem {
	return []domain.OptionItem{
		{ID: "clear_peel", Name: "クリアー剥離", Description: "劣化したクリア層を剥がして下地を整えます", Category: domain.CategoryPrep, UnitLabel: "パネル", Price: domain.PerUnitPrice(10000)},
		{ID: "scratch_repair", Name: "擦り傷補修", Description: "車体の擦り傷を補修します", Category: domain.CategoryPrep, UnitLabel: "パネル", Price: domain.PerUnitPrice(10000)},
		{ID: "dent_repair", Name: "凹み補修", Description: "車体の凹みを補修します", Category: domain.CategoryPrep, UnitLabel: "パネル", Price: domain.PerUnitPrice(10000)},
		{ID: "wrapping_peel", Name: "ラッピング剥離", Description: "既存のラッピングを全て剥がします", Category: domain.CategoryPrep, Price: domain.FixedPrice(50000)},

		{ID: "parts_removal_set", Name: "外廻り 脱着セット", Description: "バンパー、ライト、ドアノブ等の脱着を行い綺麗に仕上げます。", Category: domain.CategoryParts, Price: domain.PerSizePrice(25000, 35000, 45000)},
		{ID: "parts_removal_aero", Name: "エアロ脱着追加", Description: "エアロパーツ装着車の場合の追加料金", Category: domain.CategoryParts, Price: domain.FixedPrice(20000)},
		{ID: "glass_removal", Name: "ガラス脱着セット", Description: "ガラスを取り外して塗装します（モール交換含む）", Category: domain.CategoryParts, Price: domain.FixedPrice(50000)},

		{ID: "door_inner", Name: "ドア中塗装", Description: "ドアを開けた内側部分も塗装します", Category: domain.CategorySpecial, UnitLabel: "ドア", Price: domain.PerSizePrice(10000, 15000, 15000)},
		{ID: "two_tone", Name: "2色塗装", Description: "ルーフなどを別の色で塗り分ける場合", Category: domain.CategorySpecial, Price: domain.FixedPrice(30000)},
		{ID: "matte", Name: "マット塗装 (艶消し)", Description: "ワイルドでモダンな艶消し仕上げに変更", Category: domain.CategorySpecial, Price: domain.PerSizePrice(30000, 40000, 50000)},
		{ID: "clear_coat", Name: "高品位クリアーコート", Description: "通常より厚みと光沢のあるクリアー層を追加", Category: domain.CategorySpecial, Price: domain.PerSizePrice(30000, 40000, 50000)},
		{ID: "mirror_finish", Name: "鏡面仕上げ", Description: "塗装肌を平滑に磨き上げる最高級の仕上げ", Category: domain.CategorySpecial, Price: domain.FixedPrice(50000)},
		{ID: "raptor", Name: "ラプター塗装", Description: "傷に強い高耐久ウレタン塗装（バンパー等）", Category: domain.CategorySpecial, Price: domain.FixedPrice(30000)},

		{ID: "glass_coating", Name: "ガラス全面コーティング", Description: "塗装後のボディを保護し、輝きを持続させます", Category: domain.CategoryCoating, Price: domain.FixedPrice(5000)},
		{ID: "headlight_clear", Name: "ヘッドランプクリアー塗装", Description: "黄ばみを除去しクリア塗装で保護 (左右)", Category: domain.CategoryCoating, Price: domain.FixedPrice(10000)},
		{ID: "wheel_paint", Name: "ホイール塗装", Description: "ホイールの色替え (1本〜)", Category: domain.CategorySpecial, UnitLabel: "本", Price: domain.PerUnitPrice(5000)},
	}
}
