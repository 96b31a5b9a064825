package templates

const warningTmpl = `
<div>
	<p style="font-size:14px; color:#000000; margin:0 0 12px 0;">Hi {{Name}},</p>
	<p style="font-size:14px; color:#000000; margin:0 0 12px 0;">
		Your content for <b>{{Restaurant}}</b> (visit on {{VisitDate}}) was due by {{OriginalDeadline}} and we haven't seen it on both platforms yet.
	</p>
	<p style="font-size:14px; color:#000000; margin:0 0 12px 0;">
		You have until <b>{{FinalDeadline}}</b> to get it posted. Missing this final deadline will count as a strike.
		{{#TikTokMissing}}<br/>Still missing: TikTok post.{{/TikTokMissing}}
		{{#InstagramMissing}}<br/>Still missing: Instagram post.{{/InstagramMissing}}
	</p>
	<p style="font-size:14px; color:#000000; margin:0 0 12px 0;">
		Current strikes: {{StrikeCount}} of 3. Next strike: {{NextConsequence}}.
	</p>
	<p style="font-size:14px; color:#000000; margin:0 0 12px 0;">
		Submit here: <a href="{{SubmitURL}}">{{SubmitURL}}</a>
	</p>
	<p style="font-size:14px; color:#000000; margin:0;">~ The FoodTrend Team</p>
</div>
`

var WarningEmail = MustacheMust(warningTmpl)

const strikeTmpl = `
<div>
	<p style="font-size:14px; color:#000000; margin:0 0 12px 0;">Hi {{Name}},</p>
	<p style="font-size:14px; color:#000000; margin:0 0 12px 0;">
		Strike #{{StrikeNumber}} of 3 has been issued on your account for a missed posting deadline.
	</p>
	<p style="font-size:14px; color:#000000; margin:0 0 12px 0;">{{NextConsequence}}</p>
	<p style="font-size:14px; color:#000000; margin:0 0 12px 0;">
		Your dashboard: <a href="{{DashboardURL}}">{{DashboardURL}}</a>
	</p>
	<p style="font-size:14px; color:#000000; margin:0;">~ The FoodTrend Team</p>
</div>
`

var StrikeEmail = MustacheMust(strikeTmpl)

const suspensionTmpl = `
<div>
	<p style="font-size:14px; color:#000000; margin:0 0 12px 0;">Hi {{Name}},</p>
	<p style="font-size:14px; color:#000000; margin:0 0 12px 0;">
		Your account has been suspended for {{Days}} days: {{Reason}}.
	</p>
	<p style="font-size:14px; color:#000000; margin:0 0 12px 0;">
		The suspension lifts on {{SuspensionEnd}}. You can't accept new visits until then.
	</p>
	<p style="font-size:14px; color:#000000; margin:0;">~ The FoodTrend Team</p>
</div>
`

var SuspensionEmail = MustacheMust(suspensionTmpl)

const removalTmpl = `
<div>
	<p style="font-size:14px; color:#000000; margin:0 0 12px 0;">Hi {{Name}},</p>
	<p style="font-size:14px; color:#000000; margin:0 0 12px 0;">
		Your account has been removed from FoodTrend: {{Reason}}.
	</p>
	<p style="font-size:14px; color:#000000; margin:0 0 12px 0;">
		All unpaid referral commissions have been cancelled. To appeal, reply to this email before {{AppealDeadline}}.
	</p>
	<p style="font-size:14px; color:#000000; margin:0;">~ The FoodTrend Team</p>
</div>
`

var RemovalEmail = MustacheMust(removalTmpl)

const reinstatementTmpl = `
<div>
	<p style="font-size:14px; color:#000000; margin:0 0 12px 0;">Hi {{Name}},</p>
	<p style="font-size:14px; color:#000000; margin:0 0 12px 0;">
		Your suspension has ended and your account is active again. Welcome back!
	</p>
	<p style="font-size:14px; color:#000000; margin:0 0 12px 0;">
		You're at {{StrikeCount}} of 3 strikes, so please keep the 48-hour posting window in mind.
	</p>
	<p style="font-size:14px; color:#000000; margin:0;">~ The FoodTrend Team</p>
</div>
`

var ReinstatementEmail = MustacheMust(reinstatementTmpl)

const summaryTmpl = `
<div>
	<p style="font-size:14px; color:#000000; margin:0 0 12px 0;">Hi {{Name}},</p>
	<p style="font-size:14px; color:#000000; margin:0 0 12px 0;">
		Your FoodTrend summary: {{PendingVisits}} visit(s) awaiting content, {{FlaggedVisits}} flagged.
	</p>
	<p style="font-size:14px; color:#000000; margin:0 0 12px 0;">
		Your dashboard: <a href="{{DashboardURL}}">{{DashboardURL}}</a>
	</p>
	<p style="font-size:14px; color:#000000; margin:0;">~ The FoodTrend Team</p>
</div>
`

var DailySummaryEmail = MustacheMust(summaryTmpl)
