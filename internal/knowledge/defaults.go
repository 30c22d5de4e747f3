package knowledge

// DefaultArticles seeds an empty knowledge base.
func DefaultArticles() []Article {
	return []Article{
		{
			ID:       "emergency-fund",
			Title:    "Emergency fund",
			Category: "SAVINGS",
			Content:  "Keep three to six months of essential expenses in an instant-access savings account before investing. Self-employed customers or single-income households should aim for six months or more.",
		},
		{
			ID:       "debt-priority",
			Title:    "Paying down debt",
			Category: "DEBT",
			Content:  "Repay high-interest debt such as credit cards and overdrafts before investing. Pay the highest interest rate first while making minimum payments on everything else.",
		},
		{
			ID:       "pension-contributions",
			Title:    "Retirement contributions",
			Category: "RETIREMENT",
			Content:  "Contribute at least enough to a workplace pension to receive the full employer match. Contributions are usually tax-advantaged and compound over long horizons.",
		},
		{
			ID:       "risk-tolerance",
			Title:    "Risk tolerance and horizon",
			Category: "INVESTING",
			Content:  "Money needed within five years should not be held in equities. Longer horizons can tolerate more equity exposure. Low risk tolerance favours bonds, deposits and diversified low-volatility funds.",
		},
		{
			ID:       "diversification",
			Title:    "Diversification",
			Category: "INVESTING",
			Content:  "Spread investments across asset classes, regions and sectors. Low-cost index funds give broad diversification and keep fees low, which matters over decades.",
		},
		{
			ID:       "mortgage-deposit",
			Title:    "Saving for a home",
			Category: "MORTGAGE",
			Content:  "A deposit of at least ten percent improves mortgage rates, and twenty percent avoids most lender insurance charges. Keep the deposit in low-risk savings when the purchase is less than five years away.",
		},
		{
			ID:       "budgeting",
			Title:    "Budgeting",
			Category: "BUDGETING",
			Content:  "A simple budget splits net income into needs, wants and savings. Review recurring subscriptions and card spending monthly to find money for savings goals.",
		},
		{
			ID:       "suitability",
			Title:    "Regulated advice",
			Category: "REGULATORY",
			Content:  "Guidance must be suitable for the customer's circumstances and must not guarantee returns. Customers with complex needs such as large inheritances or business sales should be referred to a licensed financial adviser.",
		},
	}
}
