package templates

const newReferralTmpl = `
<div>
	<p style="font-size:14px; color:#000000; margin:0 0 12px 0;">Hi {{Name}},</p>
	<p style="font-size:14px; color:#000000; margin:0 0 12px 0;">
		<b>{{Restaurant}}</b> just made their first payment using your referral code!
	</p>
	<p style="font-size:14px; color:#000000; margin:0 0 12px 0;">
		You'll earn ${{EarlyRate}}/month for the next {{EarlyMonths}} months, then ${{OngoingRate}}/month ongoing for as long as they stay subscribed.
	</p>
	<p style="font-size:14px; color:#000000; margin:0 0 12px 0;">
		Track your earnings: <a href="{{DashboardURL}}">{{DashboardURL}}</a>
	</p>
	<p style="font-size:14px; color:#000000; margin:0;">~ The FoodTrend Team</p>
</div>
`

var NewReferralEmail = MustacheMust(newReferralTmpl)
