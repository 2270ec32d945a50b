package analysis

import "fmt"

// buildPrompt assembles the instruction text for one evaluation. The three
// inputs are embedded verbatim; the output contract (JSON object, Japanese,
// fixed rating vocabulary, assessment length cap) is advisory to the model
// and enforced only by the parser's fallback.
func buildPrompt(ocrText, profileText, barcode string) string {
	return fmt.Sprintf(`# スキンケア製品 成分分析AI

あなたはスキンケア製品の成分分析を専門とするAIです。
ユーザーの肌質・悩み・希望に基づいて製品を評価してください。

## 入力情報

### 製品情報（OCR結果）
%s

### バーコード
%s

### ユーザープロフィール
%s

## 分析タスク

### 1. 製品判定
- 化粧品・スキンケア製品かどうかを判定
- 化粧品以外の場合：is_cosme を false に設定
- 化粧品の場合：各成分を詳細分析

### 2. 成分評価基準
各成分について以下で評価：
- **良好**：ユーザーに適している
- **やや注意**：一部注意が必要
- **不適合**：ユーザーに不適

### 3. 総合評価点数（1-5）
5が非常に適している、1が不適切（使用非推奨）。

## 評価ポイント
- 肌タイプ・肌悩み・希望効果との適合性
- 避けたい成分が含まれていないか
- 特記事項への配慮

## 出力形式

**重要：以下のJSONフォーマットで回答してください**
- コードブロックマーカーは使用しない
- 日本語で記述
- そのまま使用可能なJSON形式
- **overall_assessmentは150文字以内で簡潔にまとめる**

### 出力例

{
  "product_name": "モイスチャー乳液",
  "company_name": "花王",
  "category": "乳液",
  "price_infered_without_tax_yen": 1200,
  "is_cosme": true,
  "analysis_type": "成分分析結果",
  "ingredients": [
    {
      "name": "セラミド",
      "rating": "良好",
      "effect": "肌の保湿バリアを強化する成分"
    }
  ],
  "overall_score": 4,
  "overall_assessment": "この製品は保湿成分が豊富で乾燥肌に適しています。"
}

## 化粧品以外の場合

{
  "product_name": "検出された製品名",
  "is_cosme": false,
  "overall_assessment": "この製品は化粧品ではありません"
}

---
上記の指示に従って分析を開始してください。`, ocrText, barcode, profileText)
}
